package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/kasira/internal/apikey/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenPrefix         = "ksk"
	secretBytes         = 16
	rotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	Gateway *db.Gateway
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
}

type Service struct {
	gw    *db.Gateway
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	now   func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		gw:    p.Gateway,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		now:   time.Now,
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return nil, domain.ErrInvalidShop
	}

	var items []domain.APIKey
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.ListByShop(ctx, conn, shopID)
		return listErr
	})
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.SecretResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return nil, domain.ErrInvalidShop
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	now := s.now().UTC()
	keyID := ulid.Make().String()
	plain, hash, err := generateToken(keyID)
	if err != nil {
		return nil, err
	}

	key := &domain.APIKey{
		ID:         s.genID.Generate(),
		ShopID:     shopID,
		KeyID:      keyID,
		Name:       name,
		Role:       role,
		SecretHash: hash,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, key)
	})
	if err != nil {
		return nil, err
	}

	return &domain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

func (s *Service) Rotate(ctx context.Context, keyID string) (*domain.SecretResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return nil, domain.ErrInvalidShop
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, domain.ErrInvalidKeyID
	}

	var result *domain.SecretResponse
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
			if err != nil {
				return err
			}
			if current == nil || current.ShopID != shopID || !current.IsActive || s.isExpired(current.ExpiresAt) {
				return domain.ErrNotFound
			}

			now := s.now().UTC()
			grace := now.Add(rotationGracePeriod)
			current.ExpiresAt = &grace
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}

			nextKeyID := ulid.Make().String()
			plain, hash, err := generateToken(nextKeyID)
			if err != nil {
				return err
			}

			rotatedFrom := current.KeyID
			next := &domain.APIKey{
				ID:               s.genID.Generate(),
				ShopID:           shopID,
				KeyID:            nextKeyID,
				Name:             current.Name,
				Role:             current.Role,
				SecretHash:       hash,
				IsActive:         true,
				CreatedAt:        now,
				UpdatedAt:        now,
				RotatedFromKeyID: &rotatedFrom,
			}

			if err := s.repo.Insert(ctx, tx, next); err != nil {
				return err
			}

			result = &domain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ErrInvalidShop
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return domain.ErrInvalidKeyID
	}

	return s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		key, err := s.repo.FindByKeyID(ctx, conn, trimmed)
		if err != nil {
			return err
		}
		if key == nil || key.ShopID != shopID {
			return domain.ErrNotFound
		}

		now := s.now().UTC()
		key.IsActive = false
		key.UpdatedAt = now
		if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
			key.ExpiresAt = &now
		}
		return s.repo.Update(ctx, conn, key)
	})
}

func (s *Service) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	keyID, secret, err := splitToken(token)
	if err != nil {
		return nil, err
	}

	var key *domain.APIKey
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var findErr error
		key, findErr = s.repo.FindByKeyID(ctx, conn, keyID)
		return findErr
	})
	if err != nil {
		return nil, err
	}
	if key == nil || !key.IsActive || s.isExpired(key.ExpiresAt) {
		return nil, domain.ErrInvalidToken
	}
	if !domain.CompareSecret(key.SecretHash, secret) {
		return nil, domain.ErrInvalidToken
	}

	// Best effort. A failed touch must not fail authentication.
	touchErr := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.TouchLastUsed(ctx, conn, keyID, s.now().UTC())
	})
	if touchErr != nil {
		s.log.Debug("last_used_at update failed", zap.Error(touchErr))
	}

	return &domain.Identity{
		ShopID: key.ShopID,
		KeyID:  key.KeyID,
		Role:   key.Role,
	}, nil
}

func (s *Service) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return s.now().UTC().After(*expiresAt)
}

func toResponse(key *domain.APIKey) domain.Response {
	return domain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Role:             key.Role,
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func generateToken(keyID string) (string, string, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	plain := fmt.Sprintf("%s_%s_%s", tokenPrefix, keyID, secretPart)
	hash, err := domain.HashSecret(secretPart)
	if err != nil {
		return "", "", err
	}
	return plain, hash, nil
}

func splitToken(token string) (keyID, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(token), "_")
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", domain.ErrInvalidToken
	}
	return parts[1], parts[2], nil
}
