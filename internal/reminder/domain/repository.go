package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reminder *Reminder) error
	ListByInvoice(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) ([]Reminder, error)

	// LastAttemptAt returns when the invoice was last reminded, any
	// outcome, or nil when it never has been. The dispatcher uses it to
	// keep failed sends from retrying on every scan.
	LastAttemptAt(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) (*time.Time, error)
}
