package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/payment/domain"
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
	Repo         domain.Repository
	InvoiceRepo  invoicedomain.Repository
	CustomerRepo customerdomain.Repository
	ShopRepo     shopdomain.Repository
	PDF          pdf.Provider
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gw           *db.Gateway
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	invoiceRepo  invoicedomain.Repository
	customerRepo customerdomain.Repository
	shopRepo     shopdomain.Repository
	pdf          pdf.Provider
	metrics      *obsmetrics.Metrics
	now          func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		gw:           p.Gateway,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		invoiceRepo:  p.InvoiceRepo,
		customerRepo: p.CustomerRepo,
		shopRepo:     p.ShopRepo,
		pdf:          p.PDF,
		metrics:      p.Metrics,
		now:          time.Now,
	}
}

// Record applies a payment to an invoice. The payment insert and the
// invoice balance update commit together, so a crash between the two
// cannot leave the books out of sync.
func (s *Service) Record(ctx context.Context, req domain.RecordPaymentRequest) (domain.Payment, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Payment{}, domain.ErrInvalidShop
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return domain.Payment{}, domain.ErrInvalidInvoice
	}
	if req.AmountCents <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return domain.Payment{}, domain.ErrInvalidMethod
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = uuid.NewString()
	}

	now := s.now().UTC()
	payment := domain.Payment{
		ID:          s.genID.Generate(),
		ShopID:      shopID,
		InvoiceID:   invoiceID,
		AmountCents: req.AmountCents,
		Method:      method,
		Reference:   reference,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   now,
	}

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			invoice, err := s.invoiceRepo.FindByID(ctx, tx, shopID, invoiceID)
			if err != nil {
				return err
			}
			if invoice == nil {
				return domain.ErrInvalidInvoice
			}
			if invoice.Status == invoicedomain.InvoiceStatusVoid {
				return domain.ErrInvoiceVoid
			}
			if invoice.PaidCents+req.AmountCents > invoice.TotalCents {
				return domain.ErrOverpayment
			}

			if err := s.repo.Insert(ctx, tx, &payment); err != nil {
				return err
			}

			invoice.PaidCents += req.AmountCents
			if invoice.PaidCents >= invoice.TotalCents {
				invoice.Status = invoicedomain.InvoiceStatusPaid
			} else {
				invoice.Status = invoicedomain.InvoiceStatusPartial
			}
			invoice.UpdatedAt = now
			return s.invoiceRepo.Update(ctx, tx, invoice)
		})
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.metrics.RecordPayment(ctx, string(method))
	s.log.Info("payment recorded",
		zap.String("invoice_id", invoiceID.String()),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("method", string(method)),
	)
	return payment, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetPaymentRequest) (domain.Payment, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.Payment{}, domain.ErrInvalidShop
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Payment{}, domain.ErrInvalidID
	}

	var payment *domain.Payment
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var findErr error
		payment, findErr = s.repo.FindByID(ctx, conn, shopID, id)
		return findErr
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}

	return *payment, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListPaymentResponse{}, domain.ErrInvalidShop
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListPaymentFilter{
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Method:    strings.ToLower(strings.TrimSpace(req.Method)),
	}

	var items []*domain.Payment
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		items, listErr = s.repo.List(ctx, conn, shopID, filter, pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		})
		return listErr
	})
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := domain.ListPaymentResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) RenderReceipt(ctx context.Context, req domain.GetPaymentRequest) ([]byte, error) {
	payment, err := s.GetByID(ctx, req)
	if err != nil {
		return nil, err
	}

	var invoice *invoicedomain.Invoice
	var shop *shopdomain.Shop
	var customer *customerdomain.Customer
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var loadErr error
		invoice, loadErr = s.invoiceRepo.FindByID(ctx, conn, payment.ShopID, payment.InvoiceID)
		if loadErr != nil {
			return loadErr
		}
		if invoice == nil {
			return domain.ErrInvalidInvoice
		}
		lines, loadErr := s.invoiceRepo.FindLines(ctx, conn, payment.ShopID, invoice.ID)
		if loadErr != nil {
			return loadErr
		}
		invoice.Lines = lines
		shop, loadErr = s.shopRepo.FindByID(ctx, conn, payment.ShopID)
		if loadErr != nil {
			return loadErr
		}
		customer, loadErr = s.customerRepo.FindByID(ctx, conn, payment.ShopID, invoice.CustomerID)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, domain.ErrInvalidShop
	}
	if customer == nil {
		return nil, domain.ErrInvalidInvoice
	}

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

	return s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		InvoiceData: pdf.InvoiceData{
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
		},
		DatePaid: payment.CreatedAt.Format("2006-01-02"),
		Method:   string(payment.Method),
	})
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, cents/100, cents%100)
}
