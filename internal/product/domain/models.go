package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Product struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	ShopID      snowflake.ID      `gorm:"not null;index;uniqueIndex:idx_products_shop_sku" json:"shop_id"`
	SKU         string            `gorm:"not null;uniqueIndex:idx_products_shop_sku" json:"sku"`
	Name        string            `gorm:"not null" json:"name"`
	Description string            `json:"description,omitempty"`
	PriceCents  int64             `gorm:"not null" json:"price_cents"`
	CostCents   int64             `gorm:"not null;default:0" json:"cost_cents"`
	StockQty    int64             `gorm:"not null;default:0" json:"stock_qty"`
	Archived    bool              `gorm:"not null;default:false" json:"archived"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

type MovementKind string

const (
	MovementKindGRN        MovementKind = "grn"
	MovementKindSale       MovementKind = "sale"
	MovementKindAdjustment MovementKind = "adjustment"
)

// StockMovement is an append-only record of every stock quantity change.
// Quantity is signed: positive for stock-in, negative for stock-out.
type StockMovement struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ShopID    snowflake.ID `gorm:"not null;index" json:"shop_id"`
	ProductID snowflake.ID `gorm:"not null;index" json:"product_id"`
	Kind      MovementKind `gorm:"not null" json:"kind"`
	Quantity  int64        `gorm:"not null" json:"quantity"`
	Reference string       `json:"reference,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
