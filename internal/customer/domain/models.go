package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	ShopID    snowflake.ID      `gorm:"not null;index" json:"shop_id"`
	Name      string            `gorm:"not null" json:"name"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Address   string            `json:"address,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// OutstandingBalance is a read model: the sum of unpaid invoice remainders
// for one customer.
type OutstandingBalance struct {
	CustomerID       snowflake.ID `json:"customer_id"`
	OutstandingCents int64        `json:"outstanding_cents"`
	OpenInvoices     int64        `json:"open_invoices"`
}
