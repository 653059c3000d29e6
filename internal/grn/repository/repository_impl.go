package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/grn/domain"
	"github.com/smallbiznis/kasira/pkg/db/option"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, grn *domain.GRN) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO grns (id, shop_id, supplier_id, number, status, total_cost_cents, note, received_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grn.ID,
		grn.ShopID,
		grn.SupplierID,
		grn.Number,
		grn.Status,
		grn.TotalCostCents,
		grn.Note,
		grn.ReceivedAt,
		grn.CreatedAt,
		grn.UpdatedAt,
	).Error
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.GRNLine) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO grn_lines (id, grn_id, shop_id, product_id, quantity, unit_cost_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.GRNID,
		line.ShopID,
		line.ProductID,
		line.Quantity,
		line.UnitCostCents,
		line.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*domain.GRN, error) {
	var grn domain.GRN
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop_id, supplier_id, number, status, total_cost_cents, note, received_at, created_at, updated_at
		 FROM grns WHERE shop_id = ? AND id = ?`,
		shopID,
		id,
	).Scan(&grn).Error
	if err != nil {
		return nil, err
	}
	if grn.ID == 0 {
		return nil, nil
	}
	return &grn, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, shopID, grnID snowflake.ID) ([]domain.GRNLine, error) {
	var lines []domain.GRNLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, grn_id, shop_id, product_id, quantity, unit_cost_cents, created_at
		 FROM grn_lines WHERE shop_id = ? AND grn_id = ? ORDER BY id`,
		shopID,
		grnID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, shopID snowflake.ID, filter domain.ListGRNFilter, page pagination.Pagination) ([]*domain.GRN, error) {
	var grns []*domain.GRN
	stmt := db.WithContext(ctx).
		Model(&domain.GRN{}).
		Where("shop_id = ?", shopID)
	if filter.SupplierID != "" {
		stmt = stmt.Where("supplier_id = ?", filter.SupplierID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&grns).Error
	if err != nil {
		return nil, err
	}
	return grns, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, grn *domain.GRN) error {
	return db.WithContext(ctx).Exec(
		`UPDATE grns SET status = ?, total_cost_cents = ?, note = ?, received_at = ?, updated_at = ?
		 WHERE shop_id = ? AND id = ?`,
		grn.Status,
		grn.TotalCostCents,
		grn.Note,
		grn.ReceivedAt,
		grn.UpdatedAt,
		grn.ShopID,
		grn.ID,
	).Error
}

func (r *repo) MaxNumber(ctx context.Context, db *gorm.DB, shopID snowflake.ID, pattern string) (string, error) {
	var number string
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(number), '') FROM grns WHERE shop_id = ? AND number LIKE ?`,
		shopID,
		pattern,
	).Scan(&number).Error
	if err != nil {
		return "", err
	}
	return number, nil
}
