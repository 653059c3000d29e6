package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	"github.com/smallbiznis/kasira/internal/identifier"
	"github.com/smallbiznis/kasira/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	"github.com/smallbiznis/kasira/internal/providers/email"
	"github.com/smallbiznis/kasira/internal/providers/pdf"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Gateway      *db.Gateway
	Log          *zap.Logger
	GenID        *snowflake.Node
	Numbers      *identifier.Generator
	Repo         domain.Repository
	ProductRepo  productdomain.Repository
	CustomerRepo customerdomain.Repository
	ShopRepo     shopdomain.Repository
	Email        email.Provider
	PDF          pdf.Provider
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gw           *db.Gateway
	log          *zap.Logger
	genID        *snowflake.Node
	numbers      *identifier.Generator
	repo         domain.Repository
	productRepo  productdomain.Repository
	customerRepo customerdomain.Repository
	shopRepo     shopdomain.Repository
	email        email.Provider
	pdf          pdf.Provider
	metrics      *obsmetrics.Metrics
	now          func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		gw:           p.Gateway,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		numbers:      p.Numbers,
		repo:         p.Repo,
		productRepo:  p.ProductRepo,
		customerRepo: p.CustomerRepo,
		shopRepo:     p.ShopRepo,
		email:        p.Email,
		pdf:          p.PDF,
		metrics:      p.Metrics,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Invoice{}, domain.ErrInvalidShop
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidCustomer
	}
	if len(req.Lines) == 0 {
		return domain.Invoice{}, domain.ErrInvalidLines
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return domain.Invoice{}, domain.ErrInvalidLines
		}
	}

	now := s.now().UTC()
	invoice := domain.Invoice{
		ID:          s.genID.Generate(),
		ShopID:      shopID,
		CustomerID:  customerID,
		Status:      domain.InvoiceStatusIssued,
		PublicToken: ulid.Make().String(),
		Note:        strings.TrimSpace(req.Note),
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var lines []domain.InvoiceLine
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			shop, err := s.shopRepo.FindByID(ctx, tx, shopID)
			if err != nil {
				return err
			}
			if shop == nil {
				return domain.ErrInvalidShop
			}

			customer, err := s.customerRepo.FindByID(ctx, tx, shopID, customerID)
			if err != nil {
				return err
			}
			if customer == nil {
				return domain.ErrInvalidCustomer
			}

			lines = lines[:0]
			var subtotal int64
			for _, reqLine := range req.Lines {
				productID, err := parseID(reqLine.ProductID)
				if err != nil {
					return domain.ErrInvalidLines
				}
				product, err := s.productRepo.FindByID(ctx, tx, shopID, productID)
				if err != nil {
					return err
				}
				if product == nil || product.Archived {
					return domain.ErrUnknownProduct
				}
				if product.StockQty < reqLine.Quantity {
					return domain.ErrInsufficient
				}
				lineTotal := product.PriceCents * reqLine.Quantity
				lines = append(lines, domain.InvoiceLine{
					ID:             s.genID.Generate(),
					InvoiceID:      invoice.ID,
					ShopID:         shopID,
					ProductID:      product.ID,
					Description:    product.Name,
					Quantity:       reqLine.Quantity,
					UnitPriceCents: product.PriceCents,
					LineTotalCents: lineTotal,
					CreatedAt:      now,
				})
				subtotal += lineTotal
			}

			invoice.SubtotalCents = subtotal
			invoice.TaxCents = int64(math.Round(float64(subtotal) * shop.TaxRate))
			invoice.TotalCents = invoice.SubtotalCents + invoice.TaxCents

			number, err := s.numbers.TimeRandom(ctx, func(ctx context.Context, candidate string) (bool, error) {
				return s.repo.ExistsNumber(ctx, tx, shopID, candidate)
			})
			if err != nil {
				return err
			}
			invoice.Number = number

			if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
				return err
			}
			for i := range lines {
				if err := s.repo.InsertLine(ctx, tx, &lines[i]); err != nil {
					return err
				}
				movement := productdomain.StockMovement{
					ID:        s.genID.Generate(),
					ShopID:    shopID,
					ProductID: lines[i].ProductID,
					Kind:      productdomain.MovementKindSale,
					Quantity:  -lines[i].Quantity,
					Reference: invoice.Number,
					CreatedAt: now,
				}
				if err := s.productRepo.ApplyMovement(ctx, tx, &movement); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// The generator's retry loop is best effort; the compound
			// unique index caught a residual collision. The caller
			// retries the whole write.
			return domain.Invoice{}, domain.ErrDuplicateNumber
		}
		return domain.Invoice{}, err
	}

	s.metrics.RecordInvoiceIssued(ctx, string(invoice.Status))
	invoice.Lines = lines
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetInvoiceRequest) (domain.Invoice, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Invoice{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	return s.loadWithLines(ctx, shopID, id)
}

func (s *Service) GetByPublicToken(ctx context.Context, req domain.GetInvoiceByTokenRequest) (domain.Invoice, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.Invoice{}, domain.ErrInvalidToken
	}

	var invoice *domain.Invoice
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		found, err := s.repo.FindByPublicToken(ctx, conn, token)
		if err != nil {
			return err
		}
		if found == nil {
			return nil
		}
		lines, err := s.repo.FindLines(ctx, conn, found.ShopID, found.ID)
		if err != nil {
			return err
		}
		found.Lines = lines
		invoice = found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListInvoiceFilter{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Status:     strings.TrimSpace(req.Status),
	}

	var items []*domain.Invoice
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, filter, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

// Void cancels an unpaid invoice and returns its stock. Paid or partially
// paid invoices cannot be voided.
func (s *Service) Void(ctx context.Context, req domain.VoidInvoiceRequest) (domain.Invoice, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Invoice{}, domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	var invoice *domain.Invoice
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			found, err := s.repo.FindByID(ctx, tx, shopID, id)
			if err != nil {
				return err
			}
			if found == nil {
				return domain.ErrNotFound
			}
			if found.Status == domain.InvoiceStatusVoid {
				return domain.ErrAlreadyVoid
			}
			if found.PaidCents > 0 {
				return domain.ErrHasPayments
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
					Kind:      productdomain.MovementKindAdjustment,
					Quantity:  line.Quantity,
					Reference: found.Number,
					Note:      "void",
					CreatedAt: now,
				}
				if err := s.productRepo.ApplyMovement(ctx, tx, &movement); err != nil {
					return err
				}
			}

			found.Status = domain.InvoiceStatusVoid
			found.VoidedAt = &now
			found.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, found); err != nil {
				return err
			}

			found.Lines = lines
			invoice = found
			return nil
		})
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return *invoice, nil
}

func (s *Service) Send(ctx context.Context, req domain.SendInvoiceRequest) error {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ErrInvalidShop
	}

	id, err := parseID(req.ID)
	if err != nil {
		return domain.ErrInvalidID
	}

	invoice, err := s.loadWithLines(ctx, shopID, id)
	if err != nil {
		return err
	}

	var shop *shopdomain.Shop
	var customer *customerdomain.Customer
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var loadErr error
		shop, loadErr = s.shopRepo.FindByID(ctx, conn, shopID)
		if loadErr != nil {
			return loadErr
		}
		customer, loadErr = s.customerRepo.FindByID(ctx, conn, shopID, invoice.CustomerID)
		return loadErr
	})
	if err != nil {
		return err
	}
	if shop == nil {
		return domain.ErrInvalidShop
	}
	if customer == nil || strings.TrimSpace(customer.Email) == "" {
		return domain.ErrNoRecipient
	}

	document, err := s.pdf.GenerateInvoice(ctx, s.pdfData(invoice, shop, customer))
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Invoice %s from %s", invoice.Number, shop.Name)
	body := fmt.Sprintf("Hi %s,\n\nPlease find invoice %s attached. Amount due: %s.\n\nThank you,\n%s",
		customer.Name,
		invoice.Number,
		formatCents(invoice.TotalCents-invoice.PaidCents, shop.Currency),
		shop.Name,
	)
	return s.email.Send(ctx, email.Message{
		To:         customer.Email,
		Subject:    subject,
		Body:       body,
		Attachment: document,
		Filename:   fmt.Sprintf("invoice-%s.pdf", invoice.Number),
	})
}

func (s *Service) RenderPDF(ctx context.Context, req domain.GetInvoiceRequest) ([]byte, error) {
	invoice, err := s.GetByID(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, invoice)
}

func (s *Service) RenderPublicPDF(ctx context.Context, req domain.GetInvoiceByTokenRequest) ([]byte, error) {
	invoice, err := s.GetByPublicToken(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, invoice)
}

func (s *Service) render(ctx context.Context, invoice domain.Invoice) ([]byte, error) {
	var shop *shopdomain.Shop
	var customer *customerdomain.Customer
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var loadErr error
		shop, loadErr = s.shopRepo.FindByID(ctx, conn, invoice.ShopID)
		if loadErr != nil {
			return loadErr
		}
		customer, loadErr = s.customerRepo.FindByID(ctx, conn, invoice.ShopID, invoice.CustomerID)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, domain.ErrInvalidShop
	}
	if customer == nil {
		return nil, domain.ErrInvalidCustomer
	}
	return s.pdf.GenerateInvoice(ctx, s.pdfData(invoice, shop, customer))
}

func (s *Service) pdfData(invoice domain.Invoice, shop *shopdomain.Shop, customer *customerdomain.Customer) pdf.InvoiceData {
	items := make([]pdf.LineItem, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		items = append(items, pdf.LineItem{
			Description: line.Description,
			Qty:         line.Quantity,
			UnitPrice:   formatCents(line.UnitPriceCents, shop.Currency),
			Amount:      formatCents(line.LineTotalCents, shop.Currency),
		})
	}

	dueDate := ""
	if invoice.DueDate != nil {
		dueDate = invoice.DueDate.Format("2006-01-02")
	}

	return pdf.InvoiceData{
		ShopName:      shop.Name,
		ShopAddress:   shop.Address,
		ShopPhone:     shop.Phone,
		InvoiceNumber: invoice.Number,
		IssueDate:     invoice.CreatedAt.Format("2006-01-02"),
		DueDate:       dueDate,
		Status:        string(invoice.Status),
		BillToName:    customer.Name,
		BillToAddress: customer.Address,
		BillToEmail:   customer.Email,
		Items:         items,
		Subtotal:      formatCents(invoice.SubtotalCents, shop.Currency),
		Tax:           formatCents(invoice.TaxCents, shop.Currency),
		Total:         formatCents(invoice.TotalCents, shop.Currency),
		AmountDue:     formatCents(invoice.TotalCents-invoice.PaidCents, shop.Currency),
	}
}

func (s *Service) loadWithLines(ctx context.Context, shopID, id snowflake.ID) (domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
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
		invoice = found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, cents/100, cents%100)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
