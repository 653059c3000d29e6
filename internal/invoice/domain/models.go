package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type InvoiceStatus string

const (
	InvoiceStatusIssued  InvoiceStatus = "issued"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Invoice number is a 10-digit time+random code, unique per shop. The
// public token grants unauthenticated PDF access to a single invoice.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	ShopID        snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_invoices_shop_number" json:"shop_id"`
	CustomerID    snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number        string        `gorm:"not null;uniqueIndex:idx_invoices_shop_number" json:"number"`
	Status        InvoiceStatus `gorm:"not null;default:'issued'" json:"status"`
	SubtotalCents int64         `gorm:"not null" json:"subtotal_cents"`
	TaxCents      int64         `gorm:"not null" json:"tax_cents"`
	TotalCents    int64         `gorm:"not null" json:"total_cents"`
	PaidCents     int64         `gorm:"not null;default:0" json:"paid_cents"`
	PublicToken   string        `gorm:"not null;uniqueIndex" json:"public_token"`
	Note          string        `json:"note,omitempty"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []InvoiceLine `gorm:"-" json:"lines,omitempty"`
}

type InvoiceLine struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID      snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	ShopID         snowflake.ID `gorm:"not null;index" json:"shop_id"`
	ProductID      snowflake.ID `gorm:"not null" json:"product_id"`
	Description    string       `gorm:"not null" json:"description"`
	Quantity       int64        `gorm:"not null" json:"quantity"`
	UnitPriceCents int64        `gorm:"not null" json:"unit_price_cents"`
	LineTotalCents int64        `gorm:"not null" json:"line_total_cents"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
