package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/product/domain"
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
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Product{}, domain.ErrInvalidShop
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return domain.Product{}, domain.ErrInvalidSKU
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}
	if req.PriceCents < 0 || req.CostCents < 0 {
		return domain.Product{}, domain.ErrInvalidPrice
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          s.genID.Generate(),
		ShopID:      shopID,
		SKU:         sku,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		CostCents:   req.CostCents,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, &product)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrSKUTaken
		}
		return domain.Product{}, err
	}

	return product, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListProductResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListProductFilter{
		SKU:             strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:            strings.TrimSpace(req.Name),
		IncludeArchived: req.IncludeArchived,
	}

	var items []*domain.Product
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, filter, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(product *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        product.ID.String(),
			CreatedAt: product.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}

	resp := domain.ListProductResponse{Products: products}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetProductRequest) (domain.Product, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Product{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Product{}, err
	}

	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateProductRequest) (domain.Product, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Product{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	if req.CostCents != nil && *req.CostCents < 0 {
		return domain.Product{}, domain.ErrInvalidPrice
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Product{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		item.Name = name
	}
	if description := strings.TrimSpace(req.Description); description != "" {
		item.Description = description
	}
	if req.PriceCents != nil {
		item.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		item.CostCents = *req.CostCents
	}
	item.UpdatedAt = time.Now().UTC()

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Update(ctx, conn, item)
	})
	if err != nil {
		return domain.Product{}, err
	}

	return *item, nil
}

func (s *Service) Archive(ctx context.Context, req domain.ArchiveProductRequest) (domain.Product, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Product{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Product{}, err
	}

	item.Archived = true
	item.UpdatedAt = time.Now().UTC()

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Update(ctx, conn, item)
	})
	if err != nil {
		return domain.Product{}, err
	}

	return *item, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.AdjustStockRequest) (domain.Product, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Product{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ProductID)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Quantity == 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item.StockQty+req.Quantity < 0 {
		return domain.Product{}, domain.ErrInsufficient
	}

	movement := domain.StockMovement{
		ID:        s.genID.Generate(),
		ShopID:    shopID,
		ProductID: id,
		Kind:      domain.MovementKindAdjustment,
		Quantity:  req.Quantity,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: time.Now().UTC(),
	}

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			return s.repo.ApplyMovement(ctx, tx, &movement)
		})
	})
	if err != nil {
		return domain.Product{}, err
	}

	item.StockQty += req.Quantity
	return *item, nil
}

func (s *Service) ListMovements(ctx context.Context, req domain.ListMovementRequest) (domain.ListMovementResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListMovementResponse{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ProductID)
	if err != nil {
		return domain.ListMovementResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var items []*domain.StockMovement
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.ListMovements(ctx, conn, shopID, id, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListMovementResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(movement *domain.StockMovement) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        movement.ID.String(),
			CreatedAt: movement.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	movements := make([]domain.StockMovement, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		movements = append(movements, *item)
	}

	resp := domain.ListMovementResponse{Movements: movements}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) findByID(ctx context.Context, shopID, id snowflake.ID) (*domain.Product, error) {
	var item *domain.Product
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
