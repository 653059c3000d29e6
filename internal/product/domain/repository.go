package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*Product, error)
	FindBySKU(ctx context.Context, db *gorm.DB, shopID snowflake.ID, sku string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter ListProductFilter, page pagination.Pagination) ([]*Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error

	// ApplyMovement inserts the movement and shifts the product's stock
	// quantity in the same statement batch. Callers run it inside a
	// transaction when the movement is part of a larger write.
	ApplyMovement(ctx context.Context, db *gorm.DB, movement *StockMovement) error
	ListMovements(ctx context.Context, db *gorm.DB, shopID, productID snowflake.ID, page pagination.Pagination) ([]*StockMovement, error)
}
