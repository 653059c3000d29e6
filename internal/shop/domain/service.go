package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type ListShopRequest struct {
	PageToken string
	PageSize  int32
	Name      string
}

type ListShopFilter struct {
	Name string
}

type ListShopResponse struct {
	pagination.PageInfo
	Shops []Shop `json:"shops"`
}

type CreateShopRequest struct {
	Name     string
	Currency string
	Address  string
	Phone    string
	TaxRate  float64
}

type UpdateShopRequest struct {
	ID       string
	Name     string
	Currency string
	Address  string
	Phone    string
	TaxRate  *float64
}

type GetShopRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateShopRequest) (Shop, error)
	List(context.Context, ListShopRequest) (ListShopResponse, error)
	GetByID(context.Context, GetShopRequest) (Shop, error)
	Update(context.Context, UpdateShopRequest) (Shop, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidID      = errors.New("invalid_id")
	ErrSlugTaken      = errors.New("slug_taken")
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
	ErrNotFound       = errors.New("not_found")
)
