package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/db/option"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, shop *domain.Shop) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO shops (id, name, slug, currency, address, phone, tax_rate, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		shop.ID,
		shop.Name,
		shop.Slug,
		shop.Currency,
		shop.Address,
		shop.Phone,
		shop.TaxRate,
		shop.Metadata,
		shop.CreatedAt,
		shop.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Shop, error) {
	var shop domain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, currency, address, phone, tax_rate, metadata, created_at, updated_at
		 FROM shops WHERE id = ?`,
		id,
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Shop, error) {
	var shop domain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, currency, address, phone, tax_rate, metadata, created_at, updated_at
		 FROM shops WHERE slug = ?`,
		slug,
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListShopFilter, page pagination.Pagination) ([]*domain.Shop, error) {
	var shops []*domain.Shop
	stmt := db.WithContext(ctx).Model(&domain.Shop{})
	if filter.Name != "" {
		stmt = stmt.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, shop *domain.Shop) error {
	return db.WithContext(ctx).Exec(
		`UPDATE shops SET name = ?, currency = ?, address = ?, phone = ?, tax_rate = ?, updated_at = ?
		 WHERE id = ?`,
		shop.Name,
		shop.Currency,
		shop.Address,
		shop.Phone,
		shop.TaxRate,
		shop.UpdatedAt,
		shop.ID,
	).Error
}
