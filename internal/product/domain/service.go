package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type ListProductRequest struct {
	PageToken       string
	PageSize        int32
	SKU             string
	Name            string
	IncludeArchived bool
}

type ListProductFilter struct {
	SKU             string
	Name            string
	IncludeArchived bool
}

type ListProductResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

type CreateProductRequest struct {
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	CostCents   int64
}

type UpdateProductRequest struct {
	ID          string
	Name        string
	Description string
	PriceCents  *int64
	CostCents   *int64
}

type GetProductRequest struct {
	ID string
}

type ArchiveProductRequest struct {
	ID string
}

type AdjustStockRequest struct {
	ProductID string
	Quantity  int64
	Note      string
}

type ListMovementRequest struct {
	ProductID string
	PageToken string
	PageSize  int32
}

type ListMovementResponse struct {
	pagination.PageInfo
	Movements []StockMovement `json:"movements"`
}

type Service interface {
	Create(context.Context, CreateProductRequest) (Product, error)
	List(context.Context, ListProductRequest) (ListProductResponse, error)
	GetByID(context.Context, GetProductRequest) (Product, error)
	Update(context.Context, UpdateProductRequest) (Product, error)
	Archive(context.Context, ArchiveProductRequest) (Product, error)
	AdjustStock(context.Context, AdjustStockRequest) (Product, error)
	ListMovements(context.Context, ListMovementRequest) (ListMovementResponse, error)
}

var (
	ErrInvalidShop     = errors.New("invalid_shop")
	ErrInvalidSKU      = errors.New("invalid_sku")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrSKUTaken        = errors.New("sku_taken")
	ErrInsufficient    = errors.New("insufficient_stock")
	ErrNotFound        = errors.New("not_found")
)
