package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*Payment, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, shopID, invoiceID snowflake.ID) ([]Payment, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter ListPaymentFilter, page pagination.Pagination) ([]*Payment, error)
}
