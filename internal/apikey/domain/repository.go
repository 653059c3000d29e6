package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error

	// FindByKeyID is global, not shop scoped. The authenticating caller
	// has no shop until the key resolves to one.
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	ListByShop(ctx context.Context, db *gorm.DB, shopID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, keyID string, at time.Time) error
}
