package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type ListSupplierRequest struct {
	PageToken string
	PageSize  int32
	Name      string
}

type ListSupplierFilter struct {
	Name string
}

type ListSupplierResponse struct {
	pagination.PageInfo
	Suppliers []Supplier `json:"suppliers"`
}

type CreateSupplierRequest struct {
	Name        string
	ContactName string
	Email       string
	Phone       string
	Address     string
}

type UpdateSupplierRequest struct {
	ID          string
	Name        string
	ContactName string
	Email       string
	Phone       string
	Address     string
}

type GetSupplierRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateSupplierRequest) (Supplier, error)
	List(context.Context, ListSupplierRequest) (ListSupplierResponse, error)
	GetByID(context.Context, GetSupplierRequest) (Supplier, error)
	Update(context.Context, UpdateSupplierRequest) (Supplier, error)
}

var (
	ErrInvalidShop  = errors.New("invalid_shop")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
)
