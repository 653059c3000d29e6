package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, shop *Shop) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Shop, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Shop, error)
	List(ctx context.Context, db *gorm.DB, filter ListShopFilter, page pagination.Pagination) ([]*Shop, error)
	Update(ctx context.Context, db *gorm.DB, shop *Shop) error
}
