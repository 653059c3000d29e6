package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, grn *GRN) error
	InsertLine(ctx context.Context, db *gorm.DB, line *GRNLine) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*GRN, error)
	FindLines(ctx context.Context, db *gorm.DB, shopID, grnID snowflake.ID) ([]GRNLine, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter ListGRNFilter, page pagination.Pagination) ([]*GRN, error)
	Update(ctx context.Context, db *gorm.DB, grn *GRN) error

	// MaxNumber returns the highest existing GRN number under the given
	// prefix pattern (e.g. "GRN-2026-%") for the shop, or "" when none.
	MaxNumber(ctx context.Context, db *gorm.DB, shopID snowflake.ID, pattern string) (string, error)
}
