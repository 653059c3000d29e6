package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// Payment records money received against an invoice. Reference carries the
// external trail (card terminal batch, bank transfer id) or a generated
// receipt id when the caller has none.
type Payment struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	ShopID      snowflake.ID  `gorm:"not null;index" json:"shop_id"`
	InvoiceID   snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	Method      PaymentMethod `gorm:"not null" json:"method"`
	Reference   string        `gorm:"not null" json:"reference"`
	Note        string        `json:"note,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return true
	}
	return false
}
