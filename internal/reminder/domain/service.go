package domain

import (
	"context"
	"errors"
)

type ListReminderRequest struct {
	InvoiceID string
}

type ListReminderResponse struct {
	Reminders []Reminder `json:"reminders"`
}

// ScanResult summarizes one dispatcher pass over due invoices.
type ScanResult struct {
	Considered int
	Sent       int
	Skipped    int
	Failed     int
}

type Service interface {
	// DispatchDue scans for overdue unpaid invoices and emails a reminder
	// for each one outside its cooldown window.
	DispatchDue(ctx context.Context) (ScanResult, error)

	ListByInvoice(context.Context, ListReminderRequest) (ListReminderResponse, error)
}

var (
	ErrInvalidShop    = errors.New("invalid_shop")
	ErrInvalidInvoice = errors.New("invalid_invoice")
)
