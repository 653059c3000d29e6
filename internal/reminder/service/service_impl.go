package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/config"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/providers/email"
	"github.com/smallbiznis/kasira/internal/reminder/domain"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reminderCooldown is the minimum gap between reminder attempts for the
// same invoice, regardless of scan cadence.
const reminderCooldown = 24 * time.Hour

type Params struct {
	fx.In

	Gateway      *db.Gateway
	Log          *zap.Logger
	GenID        *snowflake.Node
	Holder       *config.ReminderConfigHolder
	Repo         domain.Repository
	InvoiceRepo  invoicedomain.Repository
	CustomerRepo customerdomain.Repository
	ShopRepo     shopdomain.Repository
	Email        email.Provider
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gw           *db.Gateway
	log          *zap.Logger
	genID        *snowflake.Node
	holder       *config.ReminderConfigHolder
	repo         domain.Repository
	invoiceRepo  invoicedomain.Repository
	customerRepo customerdomain.Repository
	shopRepo     shopdomain.Repository
	email        email.Provider
	metrics      *obsmetrics.Metrics
	now          func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		gw:           p.Gateway,
		log:          p.Log.Named("reminder.service"),
		genID:        p.GenID,
		holder:       p.Holder,
		repo:         p.Repo,
		invoiceRepo:  p.InvoiceRepo,
		customerRepo: p.CustomerRepo,
		shopRepo:     p.ShopRepo,
		email:        p.Email,
		metrics:      p.Metrics,
		now:          time.Now,
	}
}

func (s *Service) DispatchDue(ctx context.Context) (domain.ScanResult, error) {
	cfg := s.holder.Get()
	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(cfg.DueAfterDays) * 24 * time.Hour)

	var due []*invoicedomain.Invoice
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		due, listErr = s.invoiceRepo.ListDueUnpaid(ctx, conn, cutoff, cfg.MaxPerScan)
		return listErr
	})
	if err != nil {
		return domain.ScanResult{}, err
	}

	result := domain.ScanResult{Considered: len(due)}
	for _, invoice := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		outcome, err := s.remindOne(ctx, invoice, now)
		if err != nil {
			s.log.Warn("reminder dispatch failed",
				zap.String("invoice_id", invoice.ID.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		switch outcome {
		case domain.OutcomeSent:
			result.Sent++
		case domain.OutcomeSkipped:
			result.Skipped++
		case domain.OutcomeFailed:
			result.Failed++
		}
	}

	return result, nil
}

// remindOne handles a single overdue invoice. Skips are not persisted;
// sent and failed attempts are, so the cooldown covers both.
func (s *Service) remindOne(ctx context.Context, invoice *invoicedomain.Invoice, now time.Time) (domain.Outcome, error) {
	var shop *shopdomain.Shop
	var customer *customerdomain.Customer
	var lastAttempt *time.Time
	err := s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var loadErr error
		lastAttempt, loadErr = s.repo.LastAttemptAt(ctx, conn, invoice.ShopID, invoice.ID)
		if loadErr != nil {
			return loadErr
		}
		shop, loadErr = s.shopRepo.FindByID(ctx, conn, invoice.ShopID)
		if loadErr != nil {
			return loadErr
		}
		customer, loadErr = s.customerRepo.FindByID(ctx, conn, invoice.ShopID, invoice.CustomerID)
		return loadErr
	})
	if err != nil {
		return domain.OutcomeFailed, err
	}

	if lastAttempt != nil && now.Sub(*lastAttempt) < reminderCooldown {
		return domain.OutcomeSkipped, nil
	}
	if shop == nil || customer == nil || strings.TrimSpace(customer.Email) == "" {
		s.metrics.RecordReminderSent(ctx, "email", string(domain.OutcomeSkipped))
		return domain.OutcomeSkipped, nil
	}

	sendErr := s.email.Send(ctx, email.Message{
		To:      customer.Email,
		Subject: fmt.Sprintf("Payment reminder: invoice %s from %s", invoice.Number, shop.Name),
		Body: fmt.Sprintf("Hi %s,\n\nInvoice %s is past due. Amount outstanding: %s.\n\nThank you,\n%s",
			customer.Name,
			invoice.Number,
			formatCents(invoice.TotalCents-invoice.PaidCents, shop.Currency),
			shop.Name,
		),
	})

	reminder := domain.Reminder{
		ID:        s.genID.Generate(),
		ShopID:    invoice.ShopID,
		InvoiceID: invoice.ID,
		Channel:   "email",
		SentTo:    customer.Email,
		Outcome:   domain.OutcomeSent,
		CreatedAt: now,
	}
	if sendErr != nil {
		reminder.Outcome = domain.OutcomeFailed
		reminder.Detail = sendErr.Error()
	}

	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		return s.repo.Insert(ctx, conn, &reminder)
	})
	if err != nil {
		return domain.OutcomeFailed, err
	}

	s.metrics.RecordReminderSent(ctx, "email", string(reminder.Outcome))
	if sendErr != nil {
		return domain.OutcomeFailed, nil
	}
	return domain.OutcomeSent, nil
}

func (s *Service) ListByInvoice(ctx context.Context, req domain.ListReminderRequest) (domain.ListReminderResponse, error) {
	shopID, ok := shopctx.ShopIDFromContext(ctx)
	if !ok || shopID == 0 {
		return domain.ListReminderResponse{}, domain.ErrInvalidShop
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return domain.ListReminderResponse{}, domain.ErrInvalidInvoice
	}

	var reminders []domain.Reminder
	err = s.gw.ExecuteWithRetry(ctx, func(conn *gorm.DB) error {
		var listErr error
		reminders, listErr = s.repo.ListByInvoice(ctx, conn, shopID, invoiceID)
		return listErr
	})
	if err != nil {
		return domain.ListReminderResponse{}, err
	}

	return domain.ListReminderResponse{Reminders: reminders}, nil
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, cents/100, cents%100)
}
