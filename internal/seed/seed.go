package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	apikeydomain "github.com/smallbiznis/kasira/internal/apikey/domain"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultShopName = "Main"
	defaultShopSlug = "main"
)

// EnsureDefaultShop seeds the default shop and, when the shop has no
// credentials yet, a first owner API key. The plain key is logged once
// at startup; it is not recoverable afterwards.
func EnsureDefaultShop(db *gorm.DB, log *zap.Logger, shopID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shop, err := ensureShopTx(ctx, tx, node, shopID)
		if err != nil {
			return err
		}
		return ensureOwnerKeyTx(ctx, tx, node, log, shop.ID)
	})
}

func ensureShopTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, shopID snowflake.ID) (*shopdomain.Shop, error) {
	var shop shopdomain.Shop
	err := tx.WithContext(ctx).Where("slug = ?", defaultShopSlug).First(&shop).Error
	if err == nil {
		return &shop, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := shopID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	shop = shopdomain.Shop{
		ID:        id,
		Name:      defaultShopName,
		Slug:      defaultShopSlug,
		Currency:  "IDR",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func ensureOwnerKeyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, log *zap.Logger, shopID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&apikeydomain.APIKey{}).Where("shop_id = ?", shopID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	secretPart := hex.EncodeToString(secret)
	hash, err := apikeydomain.HashSecret(secretPart)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	keyID := ulid.Make().String()
	key := apikeydomain.APIKey{
		ID:         node.Generate(),
		ShopID:     shopID,
		KeyID:      keyID,
		Name:       "bootstrap owner",
		Role:       apikeydomain.RoleOwner,
		SecretHash: hash,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
		return err
	}

	if log != nil {
		log.Info("bootstrap owner API key created, store it now",
			zap.String("shop_id", shopID.String()),
			zap.String("api_key", fmt.Sprintf("ksk_%s_%s", keyID, secretPart)),
		)
	}
	return nil
}
