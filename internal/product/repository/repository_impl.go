package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/product/domain"
	"github.com/smallbiznis/kasira/pkg/db/option"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, shop_id, sku, name, description, price_cents, cost_cents, stock_qty, archived, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.ShopID,
		product.SKU,
		product.Name,
		product.Description,
		product.PriceCents,
		product.CostCents,
		product.StockQty,
		product.Archived,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop_id, sku, name, description, price_cents, cost_cents, stock_qty, archived, metadata, created_at, updated_at
		 FROM products WHERE shop_id = ? AND id = ?`,
		shopID,
		id,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, shopID snowflake.ID, sku string) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop_id, sku, name, description, price_cents, cost_cents, stock_qty, archived, metadata, created_at, updated_at
		 FROM products WHERE shop_id = ? AND sku = ?`,
		shopID,
		sku,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter domain.ListProductFilter, page pagination.Pagination) ([]*domain.Product, error) {
	var products []*domain.Product
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("shop_id = ?", shopID)
	if filter.SKU != "" {
		stmt = stmt.Where("sku = ?", filter.SKU)
	}
	if filter.Name != "" {
		stmt = stmt.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if !filter.IncludeArchived {
		stmt = stmt.Where("archived = ?", false)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET name = ?, description = ?, price_cents = ?, cost_cents = ?, archived = ?, updated_at = ?
		 WHERE shop_id = ? AND id = ?`,
		product.Name,
		product.Description,
		product.PriceCents,
		product.CostCents,
		product.Archived,
		product.UpdatedAt,
		product.ShopID,
		product.ID,
	).Error
}

func (r *repo) ApplyMovement(ctx context.Context, db *gorm.DB, movement *domain.StockMovement) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO stock_movements (id, shop_id, product_id, kind, quantity, reference, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		movement.ID,
		movement.ShopID,
		movement.ProductID,
		movement.Kind,
		movement.Quantity,
		movement.Reference,
		movement.Note,
		movement.CreatedAt,
	).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products SET stock_qty = stock_qty + ?, updated_at = ?
		 WHERE shop_id = ? AND id = ?`,
		movement.Quantity,
		movement.CreatedAt,
		movement.ShopID,
		movement.ProductID,
	).Error
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, shopID, productID snowflake.ID, page pagination.Pagination) ([]*domain.StockMovement, error) {
	var movements []*domain.StockMovement
	stmt := db.WithContext(ctx).
		Model(&domain.StockMovement{}).
		Where("shop_id = ? AND product_id = ?", shopID, productID)
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
