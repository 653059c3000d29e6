package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/customer/domain"
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
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Customer{}, domain.ErrInvalidShop
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		ShopID:    shopID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, &customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListCustomerResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListCustomerFilter{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	}

	var items []*domain.Customer
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, filter, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	resp := domain.ListCustomerResponse{Customers: customers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Customer{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Customer{}, err
	}

	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Customer{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	item, err := s.findByID(ctx, shopID, id)
	if err != nil {
		return domain.Customer{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		item.Name = name
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
		return domain.Customer{}, err
	}

	return *item, nil
}

func (s *Service) Outstanding(ctx context.Context, req domain.GetCustomerRequest) (domain.OutstandingBalance, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.OutstandingBalance{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.OutstandingBalance{}, err
	}

	if _, err := s.findByID(ctx, shopID, id); err != nil {
		return domain.OutstandingBalance{}, err
	}

	var balance *domain.OutstandingBalance
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var queryErr error
		balance, queryErr = s.repo.Outstanding(ctx, conn, shopID, id)
		return queryErr
	})
	if err != nil {
		return domain.OutstandingBalance{}, err
	}
	if balance == nil {
		return domain.OutstandingBalance{CustomerID: id}, nil
	}

	return *balance, nil
}

func (s *Service) findByID(ctx context.Context, shopID, id snowflake.ID) (*domain.Customer, error) {
	var item *domain.Customer
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
