package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/reminder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reminder *domain.Reminder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reminders (id, shop_id, invoice_id, channel, sent_to, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reminder.ID,
		reminder.ShopID,
		reminder.InvoiceID,
		reminder.Channel,
		reminder.SentTo,
		reminder.Outcome,
		reminder.Detail,
		reminder.CreatedAt,
	).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) ([]domain.Reminder, error) {
	var reminders []domain.Reminder
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop_id, invoice_id, channel, sent_to, outcome, detail, created_at
		 FROM reminders WHERE shop_id = ? AND invoice_id = ? ORDER BY created_at DESC, id DESC`,
		shopID,
		invoiceID,
	).Scan(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *repo) LastAttemptAt(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) (*time.Time, error) {
	var row struct {
		CreatedAt *time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT MAX(created_at) AS created_at FROM reminders
		 WHERE shop_id = ? AND invoice_id = ?`,
		shopID,
		invoiceID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.CreatedAt, nil
}
