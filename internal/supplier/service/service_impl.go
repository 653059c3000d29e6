package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/supplier/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"github.com/smallbiznis/kasira/pkg/shopctx"
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
		log:   p.Log.Named("supplier.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSupplierRequest) (domain.Supplier, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Supplier{}, domain.ErrInvalidShop
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Supplier{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	supplier := domain.Supplier{
		ID:          s.genID.Generate(),
		ShopID:      shopID,
		Name:        name,
		ContactName: strings.TrimSpace(req.ContactName),
		Email:       email,
		Phone:       strings.TrimSpace(req.Phone),
		Address:     strings.TrimSpace(req.Address),
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, &supplier)
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	return supplier, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSupplierRequest) (domain.ListSupplierResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListSupplierResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var items []*domain.Supplier
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, domain.ListSupplierFilter{
			Name: strings.TrimSpace(req.Name),
		}, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListSupplierResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(supplier *domain.Supplier) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        supplier.ID.String(),
			CreatedAt: supplier.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	suppliers := make([]domain.Supplier, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		suppliers = append(suppliers, *item)
	}

	resp := domain.ListSupplierResponse{Suppliers: suppliers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetSupplierRequest) (domain.Supplier, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Supplier{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Supplier{}, err
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSupplierRequest) (domain.Supplier, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Supplier{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Supplier{}, err
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Supplier{}, domain.ErrInvalidEmail
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		item.Name = name
	}
	if contact := strings.TrimSpace(req.ContactName); contact != "" {
		item.ContactName = contact
	}
	if email != "" {
		item.Email = email
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		item.Phone = phone
	}
	if address := strings.TrimSpace(req.Address); address != "" {
		item.Address = address
	}
	item.UpdatedAt = time.Now().UTC()

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Update(ctx, conn, item)
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	return *item, nil
}

func (s *Service) findByID(ctx context.Context, shopID, id snowflake.ID) (*domain.Supplier, error) {
	var item *domain.Supplier
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var findErr error
		item, findErr = s.repo.FindByID(ctx, conn, shopID, id)
		return findErr
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
