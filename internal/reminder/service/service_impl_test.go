package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kasira/internal/config"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	customerrepo "github.com/smallbiznis/kasira/internal/customer/repository"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/kasira/internal/invoice/repository"
	"github.com/smallbiznis/kasira/internal/providers/email"
	"github.com/smallbiznis/kasira/internal/reminder/domain"
	"github.com/smallbiznis/kasira/internal/reminder/repository"
	"github.com/smallbiznis/kasira/internal/reminder/service"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	shoprepo "github.com/smallbiznis/kasira/internal/shop/repository"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type capturingEmail struct {
	sent []email.Message
	err  error
}

func (p *capturingEmail) Send(_ context.Context, msg email.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

type reminderFixture struct {
	svc      domain.Service
	gw       *db.Gateway
	node     *snowflake.Node
	email    *capturingEmail
	shop     shopdomain.Shop
	customer customerdomain.Customer
	ctx      context.Context
}

func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:remindersvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&shopdomain.Shop{},
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&domain.Reminder{},
	))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))

	node, err := snowflake.NewNode(13)
	require.NoError(t, err)

	now := time.Now().UTC()
	shop := shopdomain.Shop{
		ID: node.Generate(), Name: "Warung Kopi", Slug: "warung-kopi", Currency: "IDR",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&shop).Error)

	customer := customerdomain.Customer{
		ID: node.Generate(), ShopID: shop.ID, Name: "Budi", Email: "budi@example.com",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&customer).Error)

	holder, err := config.NewReminderConfigHolder()
	require.NoError(t, err)

	mail := &capturingEmail{}
	svc := service.New(service.Params{
		Gateway:      gw,
		Log:          zap.NewNop(),
		GenID:        node,
		Holder:       holder,
		Repo:         repository.Provide(),
		InvoiceRepo:  invoicerepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ShopRepo:     shoprepo.Provide(),
		Email:        mail,
	})

	return &reminderFixture{
		svc:      svc,
		gw:       gw,
		node:     node,
		email:    mail,
		shop:     shop,
		customer: customer,
		ctx:      shopctx.WithShopID(context.Background(), shop.ID),
	}
}

func (f *reminderFixture) seedInvoice(t *testing.T, customerID snowflake.ID, status invoicedomain.InvoiceStatus, dueDaysAgo int) invoicedomain.Invoice {
	t.Helper()

	now := time.Now().UTC()
	due := now.Add(-time.Duration(dueDaysAgo) * 24 * time.Hour)
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		ShopID:        f.shop.ID,
		CustomerID:    customerID,
		Number:        fmt.Sprintf("INV-%d", f.node.Generate()%1_000_000),
		Status:        status,
		SubtotalCents: 15000,
		TotalCents:    15000,
		PublicToken:   f.node.Generate().String(),
		DueDate:       &due,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.gw.DB().Create(&invoice).Error)
	return invoice
}

func (f *reminderFixture) insertReminder(t *testing.T, invoiceID snowflake.ID, outcome domain.Outcome, createdAt time.Time) {
	t.Helper()

	require.NoError(t, f.gw.DB().Exec(
		`INSERT INTO reminders (id, shop_id, invoice_id, channel, sent_to, outcome, detail, created_at)
		 VALUES (?, ?, ?, 'email', ?, ?, '', ?)`,
		f.node.Generate(), f.shop.ID, invoiceID, f.customer.Email, outcome, createdAt,
	).Error)
}

func TestDispatchDueSendsReminder(t *testing.T) {
	f := newReminderFixture(t)
	invoice := f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusIssued, 5)

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, f.email.sent, 1)
	msg := f.email.sent[0]
	assert.Equal(t, "budi@example.com", msg.To)
	assert.Contains(t, msg.Subject, invoice.Number)
	assert.Contains(t, msg.Body, "IDR 150.00")

	list, err := f.svc.ListByInvoice(f.ctx, domain.ListReminderRequest{InvoiceID: invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, domain.OutcomeSent, list.Reminders[0].Outcome)
	assert.Equal(t, "budi@example.com", list.Reminders[0].SentTo)
}

func TestDispatchDueIgnoresNotYetDueAndSettled(t *testing.T) {
	f := newReminderFixture(t)
	f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusIssued, 1)
	f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusPaid, 10)
	f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusVoid, 10)

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Considered)
	assert.Empty(t, f.email.sent)
}

func TestDispatchDueRespectsCooldown(t *testing.T) {
	f := newReminderFixture(t)
	invoice := f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusPartial, 5)
	f.insertReminder(t, invoice.ID, domain.OutcomeSent, time.Now().UTC().Add(-2*time.Hour))

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.email.sent)

	list, err := f.svc.ListByInvoice(f.ctx, domain.ListReminderRequest{InvoiceID: invoice.ID.String()})
	require.NoError(t, err)
	assert.Len(t, list.Reminders, 1)
}

func TestDispatchDueCooldownCoversFailedAttempts(t *testing.T) {
	f := newReminderFixture(t)
	invoice := f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusIssued, 5)
	f.insertReminder(t, invoice.ID, domain.OutcomeFailed, time.Now().UTC().Add(-time.Hour))

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.email.sent)
}

func TestDispatchDueSendsAgainAfterCooldown(t *testing.T) {
	f := newReminderFixture(t)
	invoice := f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusIssued, 5)
	f.insertReminder(t, invoice.ID, domain.OutcomeSent, time.Now().UTC().Add(-48*time.Hour))

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, f.email.sent, 1)
}

func TestDispatchDueSkipsCustomerWithoutEmail(t *testing.T) {
	f := newReminderFixture(t)

	now := time.Now().UTC()
	silent := customerdomain.Customer{
		ID: f.node.Generate(), ShopID: f.shop.ID, Name: "Anon",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.gw.DB().Create(&silent).Error)
	invoice := f.seedInvoice(t, silent.ID, invoicedomain.InvoiceStatusIssued, 5)

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.email.sent)

	// Skips leave no audit row, so the invoice stays eligible.
	list, err := f.svc.ListByInvoice(f.ctx, domain.ListReminderRequest{InvoiceID: invoice.ID.String()})
	require.NoError(t, err)
	assert.Empty(t, list.Reminders)
}

func TestDispatchDueRecordsSendFailure(t *testing.T) {
	f := newReminderFixture(t)
	invoice := f.seedInvoice(t, f.customer.ID, invoicedomain.InvoiceStatusIssued, 5)
	f.email.err = errors.New("smtp unreachable")

	result, err := f.svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	list, err := f.svc.ListByInvoice(f.ctx, domain.ListReminderRequest{InvoiceID: invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, domain.OutcomeFailed, list.Reminders[0].Outcome)
	assert.Contains(t, list.Reminders[0].Detail, "smtp unreachable")
}

func TestListByInvoiceValidation(t *testing.T) {
	f := newReminderFixture(t)

	_, err := f.svc.ListByInvoice(context.Background(), domain.ListReminderRequest{InvoiceID: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidShop)

	_, err = f.svc.ListByInvoice(f.ctx, domain.ListReminderRequest{InvoiceID: "abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)
}
