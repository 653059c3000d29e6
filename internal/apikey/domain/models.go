package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleCashier:
		return true
	}
	return false
}

// APIKey stores hashed API credentials scoped to a shop. KeyID is the
// public half embedded in the presented token; the secret half is kept
// only as a bcrypt hash.
type APIKey struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ShopID           snowflake.ID `gorm:"column:shop_id;not null;index"`
	KeyID            string       `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name             string       `gorm:"type:text;not null"`
	Role             Role         `gorm:"type:text;not null"`
	SecretHash       string       `gorm:"column:secret_hash;type:text;not null"`
	IsActive         bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt       *time.Time   `gorm:"column:last_used_at"`
	ExpiresAt        *time.Time   `gorm:"column:expires_at"`
	RotatedFromKeyID *string      `gorm:"column:rotated_from_key_id;type:text"`
}

func (APIKey) TableName() string { return "api_keys" }
