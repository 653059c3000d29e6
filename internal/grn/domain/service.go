package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type CreateGRNLine struct {
	ProductID     string
	Quantity      int64
	UnitCostCents int64
}

type CreateGRNRequest struct {
	SupplierID string
	Note       string
	Lines      []CreateGRNLine
}

type GetGRNRequest struct {
	ID string
}

type ReceiveGRNRequest struct {
	ID string
}

type ListGRNRequest struct {
	PageToken  string
	PageSize   int32
	SupplierID string
	Status     string
}

type ListGRNFilter struct {
	SupplierID string
	Status     string
}

type ListGRNResponse struct {
	pagination.PageInfo
	GRNs []GRN `json:"grns"`
}

type Service interface {
	Create(context.Context, CreateGRNRequest) (GRN, error)
	GetByID(context.Context, GetGRNRequest) (GRN, error)
	List(context.Context, ListGRNRequest) (ListGRNResponse, error)
	Receive(context.Context, ReceiveGRNRequest) (GRN, error)
}

var (
	ErrInvalidShop     = errors.New("invalid_shop")
	ErrInvalidSupplier = errors.New("invalid_supplier")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidLines    = errors.New("invalid_lines")
	ErrDuplicateNumber = errors.New("duplicate_grn_number")
	ErrAlreadyReceived = errors.New("already_received")
	ErrUnknownProduct  = errors.New("unknown_product")
	ErrNotFound        = errors.New("not_found")
)
