package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type RecordPaymentRequest struct {
	InvoiceID   string
	AmountCents int64
	Method      string
	Reference   string
	Note        string
}

type GetPaymentRequest struct {
	ID string
}

type ListPaymentRequest struct {
	PageToken string
	PageSize  int32
	InvoiceID string
	Method    string
}

type ListPaymentFilter struct {
	InvoiceID string
	Method    string
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	Record(context.Context, RecordPaymentRequest) (Payment, error)
	GetByID(context.Context, GetPaymentRequest) (Payment, error)
	List(context.Context, ListPaymentRequest) (ListPaymentResponse, error)
	RenderReceipt(context.Context, GetPaymentRequest) ([]byte, error)
}

var (
	ErrInvalidShop    = errors.New("invalid_shop")
	ErrInvalidInvoice = errors.New("invalid_invoice")
	ErrInvalidID      = errors.New("invalid_payment_id")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidMethod  = errors.New("invalid_method")
	ErrInvoiceVoid    = errors.New("invoice_void")
	ErrOverpayment    = errors.New("overpayment")
	ErrNotFound       = errors.New("payment_not_found")
)
