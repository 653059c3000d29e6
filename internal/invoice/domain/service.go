package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type CreateInvoiceLine struct {
	ProductID string
	Quantity  int64
}

type CreateInvoiceRequest struct {
	CustomerID string
	Note       string
	DueDate    *time.Time
	Lines      []CreateInvoiceLine
}

type GetInvoiceRequest struct {
	ID string
}

type GetInvoiceByTokenRequest struct {
	Token string
}

type VoidInvoiceRequest struct {
	ID string
}

type SendInvoiceRequest struct {
	ID string
}

type ListInvoiceRequest struct {
	PageToken  string
	PageSize   int32
	CustomerID string
	Status     string
}

type ListInvoiceFilter struct {
	CustomerID string
	Status     string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	GetByID(context.Context, GetInvoiceRequest) (Invoice, error)
	GetByPublicToken(context.Context, GetInvoiceByTokenRequest) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	Void(context.Context, VoidInvoiceRequest) (Invoice, error)
	Send(context.Context, SendInvoiceRequest) error
	RenderPDF(context.Context, GetInvoiceRequest) ([]byte, error)
	RenderPublicPDF(context.Context, GetInvoiceByTokenRequest) ([]byte, error)
}

var (
	ErrInvalidShop     = errors.New("invalid_shop")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidLines    = errors.New("invalid_lines")
	ErrInvalidToken    = errors.New("invalid_token")
	ErrDuplicateNumber = errors.New("duplicate_invoice_number")
	ErrUnknownProduct  = errors.New("unknown_product")
	ErrInsufficient    = errors.New("insufficient_stock")
	ErrAlreadyVoid     = errors.New("already_void")
	ErrHasPayments     = errors.New("invoice_has_payments")
	ErrNoRecipient     = errors.New("customer_has_no_email")
	ErrNotFound        = errors.New("not_found")
)
