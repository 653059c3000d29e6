package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertLine(ctx context.Context, db *gorm.DB, line *InvoiceLine) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*Invoice, error)
	FindByPublicToken(ctx context.Context, db *gorm.DB, token string) (*Invoice, error)
	FindLines(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) ([]InvoiceLine, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	ExistsNumber(ctx context.Context, db *gorm.DB, shopID snowflake.ID, number string) (bool, error)
	ListDueUnpaid(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Invoice, error)
}
