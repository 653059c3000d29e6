package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type GRNStatus string

const (
	GRNStatusDraft    GRNStatus = "draft"
	GRNStatusReceived GRNStatus = "received"
)

// GRN is a goods received note: a supplier delivery that adds stock once
// received. Number is unique per shop, generated as GRN-{year}-{seq}.
type GRN struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ShopID         snowflake.ID `gorm:"not null;index;uniqueIndex:idx_grns_shop_number" json:"shop_id"`
	SupplierID     snowflake.ID `gorm:"not null;index" json:"supplier_id"`
	Number         string       `gorm:"not null;uniqueIndex:idx_grns_shop_number" json:"number"`
	Status         GRNStatus    `gorm:"not null;default:'draft'" json:"status"`
	TotalCostCents int64        `gorm:"not null;default:0" json:"total_cost_cents"`
	Note           string       `json:"note,omitempty"`
	ReceivedAt     *time.Time   `json:"received_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []GRNLine `gorm:"-" json:"lines,omitempty"`
}

type GRNLine struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	GRNID         snowflake.ID `gorm:"not null;index" json:"grn_id"`
	ShopID        snowflake.ID `gorm:"not null;index" json:"shop_id"`
	ProductID     snowflake.ID `gorm:"not null" json:"product_id"`
	Quantity      int64        `gorm:"not null" json:"quantity"`
	UnitCostCents int64        `gorm:"not null" json:"unit_cost_cents"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
