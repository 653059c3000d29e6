package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
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
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		gw:    p.Gateway,
		log:   p.Log.Named("shop.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateShopRequest) (domain.Shop, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Shop{}, domain.ErrInvalidName
	}
	if req.TaxRate < 0 || req.TaxRate > 1 {
		return domain.Shop{}, domain.ErrInvalidTaxRate
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IDR"
	}

	now := time.Now().UTC()
	shop := domain.Shop{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Currency:  currency,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		TaxRate:   req.TaxRate,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, &shop)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Shop{}, domain.ErrSlugTaken
		}
		return domain.Shop{}, err
	}

	return shop, nil
}

func (s *Service) List(ctx context.Context, req domain.ListShopRequest) (domain.ListShopResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var items []*domain.Shop
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, domain.ListShopFilter{
			Name: strings.TrimSpace(req.Name),
		}, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListShopResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(shop *domain.Shop) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        shop.ID.String(),
			CreatedAt: shop.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	shops := make([]domain.Shop, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		shops = append(shops, *item)
	}

	resp := domain.ListShopResponse{Shops: shops}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetShopRequest) (domain.Shop, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Shop{}, err
	}

	var item *domain.Shop
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var findErr error
		item, findErr = s.repo.FindByID(ctx, conn, id)
		return findErr
	})
	if err != nil {
		return domain.Shop{}, err
	}
	if item == nil {
		return domain.Shop{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateShopRequest) (domain.Shop, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Shop{}, err
	}
	if req.TaxRate != nil && (*req.TaxRate < 0 || *req.TaxRate > 1) {
		return domain.Shop{}, domain.ErrInvalidTaxRate
	}

	var item *domain.Shop
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var findErr error
		item, findErr = s.repo.FindByID(ctx, conn, id)
		return findErr
	})
	if err != nil {
		return domain.Shop{}, err
	}
	if item == nil {
		return domain.Shop{}, domain.ErrNotFound
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		item.Name = name
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" {
		item.Currency = currency
	}
	if address := strings.TrimSpace(req.Address); address != "" {
		item.Address = address
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		item.Phone = phone
	}
	if req.TaxRate != nil {
		item.TaxRate = *req.TaxRate
	}
	item.UpdatedAt = time.Now().UTC()

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Update(ctx, conn, item)
	})
	if err != nil {
		return domain.Shop{}, err
	}

	return *item, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
