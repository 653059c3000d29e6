package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, supplier *Supplier) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*Supplier, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter ListSupplierFilter, page pagination.Pagination) ([]*Supplier, error)
	Update(ctx context.Context, db *gorm.DB, supplier *Supplier) error
}
