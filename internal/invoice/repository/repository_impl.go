package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/invoice/domain"
	"github.com/smallbiznis/kasira/pkg/db/option"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, shop_id, customer_id, number, status, subtotal_cents, tax_cents, total_cents, paid_cents, public_token, note, due_date, voided_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.ShopID,
		invoice.CustomerID,
		invoice.Number,
		invoice.Status,
		invoice.SubtotalCents,
		invoice.TaxCents,
		invoice.TotalCents,
		invoice.PaidCents,
		invoice.PublicToken,
		invoice.Note,
		invoice.DueDate,
		invoice.VoidedAt,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.InvoiceLine) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_lines (id, invoice_id, shop_id, product_id, description, quantity, unit_price_cents, line_total_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.InvoiceID,
		line.ShopID,
		line.ProductID,
		line.Description,
		line.Quantity,
		line.UnitPriceCents,
		line.LineTotalCents,
		line.CreatedAt,
	).Error
}

const invoiceColumns = `id, shop_id, customer_id, number, status, subtotal_cents, tax_cents, total_cents, paid_cents, public_token, note, due_date, voided_at, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE shop_id = ? AND id = ?`,
		shopID,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByPublicToken(ctx context.Context, db *gorm.DB, token string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE public_token = ?`,
		token,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) ([]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, shop_id, product_id, description, quantity, unit_price_cents, line_total_cents, created_at
		 FROM invoice_lines WHERE shop_id = ? AND invoice_id = ? ORDER BY id`,
		shopID,
		invoiceID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("shop_id = ?", shopID)
	if filter.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, paid_cents = ?, note = ?, due_date = ?, voided_at = ?, updated_at = ?
		 WHERE shop_id = ? AND id = ?`,
		invoice.Status,
		invoice.PaidCents,
		invoice.Note,
		invoice.DueDate,
		invoice.VoidedAt,
		invoice.UpdatedAt,
		invoice.ShopID,
		invoice.ID,
	).Error
}

func (r *repo) ExistsNumber(ctx context.Context, db *gorm.DB, shopID snowflake.ID, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE shop_id = ? AND number = ?`,
		shopID,
		number,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListDueUnpaid(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status IN ('issued', 'partial') AND due_date IS NOT NULL AND due_date <= ?
		 ORDER BY due_date ASC
		 LIMIT ?`,
		before,
		limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
