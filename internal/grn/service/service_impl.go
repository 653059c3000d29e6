package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/grn/domain"
	"github.com/smallbiznis/kasira/internal/identifier"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	supplierdomain "github.com/smallbiznis/kasira/internal/supplier/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const numberPrefix = "GRN"

type Params struct {
	fx.In

	Gateway      *db.Gateway
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	ProductRepo  productdomain.Repository
	SupplierRepo supplierdomain.Repository
}

type Service struct {
	gw           *db.Gateway
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	productRepo  productdomain.Repository
	supplierRepo supplierdomain.Repository
	now          func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		gw:           p.Gateway,
		log:          p.Log.Named("grn.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		productRepo:  p.ProductRepo,
		supplierRepo: p.SupplierRepo,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateGRNRequest) (domain.GRN, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.GRN{}, domain.ErrInvalidShop
	}

	supplierID, err := parseID(req.SupplierID)
	if err != nil {
		return domain.GRN{}, domain.ErrInvalidSupplier
	}
	if len(req.Lines) == 0 {
		return domain.GRN{}, domain.ErrInvalidLines
	}

	now := s.now().UTC()
	grn := domain.GRN{
		ID:        s.genID.Generate(),
		ShopID:    shopID,
		Status:    domain.GRNStatusDraft,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}

	lines := make([]domain.GRNLine, 0, len(req.Lines))
	var totalCost int64
	for _, reqLine := range req.Lines {
		productID, err := parseID(reqLine.ProductID)
		if err != nil || reqLine.Quantity <= 0 || reqLine.UnitCostCents < 0 {
			return domain.GRN{}, domain.ErrInvalidLines
		}
		lines = append(lines, domain.GRNLine{
			ID:            s.genID.Generate(),
			GRNID:         grn.ID,
			ShopID:        shopID,
			ProductID:     productID,
			Quantity:      reqLine.Quantity,
			UnitCostCents: reqLine.UnitCostCents,
			CreatedAt:     now,
		})
		totalCost += reqLine.Quantity * reqLine.UnitCostCents
	}
	grn.TotalCostCents = totalCost

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			supplier, err := s.supplierRepo.FindByID(ctx, tx, shopID, supplierID)
			if err != nil {
				return err
			}
			if supplier == nil {
				return domain.ErrInvalidSupplier
			}
			grn.SupplierID = supplier.ID

			for _, line := range lines {
				product, err := s.productRepo.FindByID(ctx, tx, shopID, line.ProductID)
				if err != nil {
					return err
				}
				if product == nil {
					return domain.ErrUnknownProduct
				}
			}

			// Derive the next sequential number from the current maximum.
			// Two concurrent creators can observe the same maximum; the
			// compound unique index on (shop_id, number) is the backstop.
			last, err := s.repo.MaxNumber(ctx, tx, shopID, identifier.SequentialPattern(numberPrefix, now.Year()))
			if err != nil {
				return err
			}
			number, err := identifier.Sequential(numberPrefix, now.Year(), last)
			if err != nil {
				return err
			}
			grn.Number = number

			if err := s.repo.Insert(ctx, tx, &grn); err != nil {
				return err
			}
			for i := range lines {
				if err := s.repo.InsertLine(ctx, tx, &lines[i]); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.GRN{}, domain.ErrDuplicateNumber
		}
		return domain.GRN{}, err
	}

	grn.Lines = lines
	return grn, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetGRNRequest) (domain.GRN, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.GRN{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.GRN{}, domain.ErrInvalidID
	}

	var grn *domain.GRN
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, conn, shopID, id)
		if err != nil {
			return err
		}
		if found == nil {
			return nil
		}
		lines, err := s.repo.FindLines(ctx, conn, shopID, id)
		if err != nil {
			return err
		}
		found.Lines = lines
		grn = found
		return nil
	})
	if err != nil {
		return domain.GRN{}, err
	}
	if grn == nil {
		return domain.GRN{}, domain.ErrNotFound
	}

	return *grn, nil
}

func (s *Service) List(ctx context.Context, req domain.ListGRNRequest) (domain.ListGRNResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListGRNResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListGRNFilter{
		SupplierID: strings.TrimSpace(req.SupplierID),
		Status:     strings.TrimSpace(req.Status),
	}

	var items []*domain.GRN
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, filter, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListGRNResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(grn *domain.GRN) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        grn.ID.String(),
			CreatedAt: grn.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	grns := make([]domain.GRN, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		grns = append(grns, *item)
	}

	resp := domain.ListGRNResponse{GRNs: grns}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

// Receive marks the note received and applies one stock-in movement per
// line, all in a single transaction.
func (s *Service) Receive(ctx context.Context, req domain.ReceiveGRNRequest) (domain.GRN, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.GRN{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.GRN{}, domain.ErrInvalidID
	}

	var grn *domain.GRN
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			found, err := s.repo.FindByID(ctx, tx, shopID, id)
			if err != nil {
				return err
			}
			if found == nil {
				return domain.ErrNotFound
			}
			if found.Status == domain.GRNStatusReceived {
				return domain.ErrAlreadyReceived
			}

			lines, err := s.repo.FindLines(ctx, tx, shopID, id)
			if err != nil {
				return err
			}

			now := s.now().UTC()
			for _, line := range lines {
				movement := productdomain.StockMovement{
					ID:        s.genID.Generate(),
					ShopID:    shopID,
					ProductID: line.ProductID,
					Kind:      productdomain.MovementKindGRN,
					Quantity:  line.Quantity,
					Reference: found.Number,
					CreatedAt: now,
				}
				if err := s.productRepo.ApplyMovement(ctx, tx, &movement); err != nil {
					return err
				}
			}

			found.Status = domain.GRNStatusReceived
			found.ReceivedAt = &now
			found.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, found); err != nil {
				return err
			}

			found.Lines = lines
			grn = found
			return nil
		})
	})
	if err != nil {
		return domain.GRN{}, err
	}

	return *grn, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
