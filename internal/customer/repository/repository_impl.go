package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/customer/domain"
	"github.com/smallbiznis/kasira/pkg/db/option"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, shop_id, name, email, phone, address, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.ShopID,
		customer.Name,
		customer.Email,
		customer.Phone,
		customer.Address,
		customer.Metadata,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop_id, name, email, phone, address, metadata, created_at, updated_at
		 FROM customers WHERE shop_id = ? AND id = ?`,
		shopID,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("shop_id = ?", shopID)
	if filter.Name != "" {
		stmt = stmt.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Phone != "" {
		stmt = stmt.Where("phone = ?", filter.Phone)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET name = ?, email = ?, phone = ?, address = ?, updated_at = ?
		 WHERE shop_id = ? AND id = ?`,
		customer.Name,
		customer.Email,
		customer.Phone,
		customer.Address,
		customer.UpdatedAt,
		customer.ShopID,
		customer.ID,
	).Error
}

func (r *repo) Outstanding(ctx context.Context, db *gorm.DB, shopID, customerID snowflake.ID) (*domain.OutstandingBalance, error) {
	var balance domain.OutstandingBalance
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id,
		        COALESCE(SUM(total_cents - paid_cents), 0) AS outstanding_cents,
		        COUNT(*) AS open_invoices
		 FROM invoices
		 WHERE shop_id = ? AND customer_id = ? AND status IN ('issued', 'partial')
		 GROUP BY customer_id`,
		shopID,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	balance.CustomerID = customerID
	return &balance, nil
}
