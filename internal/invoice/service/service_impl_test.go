package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	customerrepo "github.com/smallbiznis/kasira/internal/customer/repository"
	"github.com/smallbiznis/kasira/internal/identifier"
	"github.com/smallbiznis/kasira/internal/invoice/domain"
	"github.com/smallbiznis/kasira/internal/invoice/repository"
	"github.com/smallbiznis/kasira/internal/invoice/service"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	productrepo "github.com/smallbiznis/kasira/internal/product/repository"
	"github.com/smallbiznis/kasira/internal/providers/email"
	"github.com/smallbiznis/kasira/internal/providers/pdf"
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

type invoiceFixture struct {
	svc      domain.Service
	gw       *db.Gateway
	node     *snowflake.Node
	email    *capturingEmail
	shop     shopdomain.Shop
	customer customerdomain.Customer
	ctx      context.Context
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:invoicesvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&shopdomain.Shop{},
		&customerdomain.Customer{},
		&productdomain.Product{},
		&productdomain.StockMovement{},
		&domain.Invoice{},
		&domain.InvoiceLine{},
	))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))

	node, err := snowflake.NewNode(11)
	require.NoError(t, err)

	now := time.Now().UTC()
	shop := shopdomain.Shop{
		ID:        node.Generate(),
		Name:      "Main",
		Slug:      "main",
		Currency:  "IDR",
		TaxRate:   0.10,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&shop).Error)

	customer := customerdomain.Customer{
		ID:        node.Generate(),
		ShopID:    shop.ID,
		Name:      "Budi",
		Email:     "budi@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&customer).Error)

	mail := &capturingEmail{}
	svc := service.New(service.Params{
		Gateway:      gw,
		Log:          zap.NewNop(),
		GenID:        node,
		Numbers:      identifier.New(zap.NewNop()),
		Repo:         repository.Provide(),
		ProductRepo:  productrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ShopRepo:     shoprepo.Provide(),
		Email:        mail,
		PDF:          pdf.New(),
	})

	return &invoiceFixture{
		svc:      svc,
		gw:       gw,
		node:     node,
		email:    mail,
		shop:     shop,
		customer: customer,
		ctx:      shopctx.WithShopID(context.Background(), shop.ID),
	}
}

func (f *invoiceFixture) seedProduct(t *testing.T, sku string, priceCents, stock int64) productdomain.Product {
	t.Helper()

	now := time.Now().UTC()
	product := productdomain.Product{
		ID:         f.node.Generate(),
		ShopID:     f.shop.ID,
		SKU:        sku,
		Name:       "Product " + sku,
		PriceCents: priceCents,
		StockQty:   stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.gw.DB().Create(&product).Error)
	return product
}

func TestCreateInvoicePricesAndStock(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 25000, 10)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 3},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusIssued, created.Status)
	assert.Equal(t, int64(75000), created.SubtotalCents)
	assert.Equal(t, int64(7500), created.TaxCents)
	assert.Equal(t, int64(82500), created.TotalCents)
	assert.Len(t, created.Number, 10)
	assert.NotEmpty(t, created.PublicToken)
	require.Len(t, created.Lines, 1)
	assert.Equal(t, int64(25000), created.Lines[0].UnitPriceCents)

	var stock int64
	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(7), stock)

	var movementQty int64
	require.NoError(t, f.gw.DB().Raw(
		"SELECT quantity FROM stock_movements WHERE product_id = ? AND kind = ?",
		product.ID, productdomain.MovementKindSale,
	).Scan(&movementQty).Error)
	assert.Equal(t, int64(-3), movementQty)
}

func TestCreateInvoiceInsufficientStock(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 2)

	_, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 3},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficient)

	var stock int64
	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(2), stock, "failed create must not touch stock")
}

func TestCreateInvoiceArchivedProduct(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)
	require.NoError(t, f.gw.DB().Exec("UPDATE products SET archived = ? WHERE id = ?", true, product.ID).Error)

	_, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)
}

func TestCreateInvoiceNoLines(t *testing.T) {
	f := newInvoiceFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)
}

func TestCreateInvoiceUnknownCustomer(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	_, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.node.Generate().String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
}

func TestVoidInvoiceRestoresStock(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 2},
		},
	})
	require.NoError(t, err)

	voided, err := f.svc.Void(f.ctx, domain.VoidInvoiceRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusVoid, voided.Status)
	require.NotNil(t, voided.VoidedAt)

	var stock int64
	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(5), stock)

	_, err = f.svc.Void(f.ctx, domain.VoidInvoiceRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyVoid)
}

func TestVoidInvoiceWithPayments(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.gw.DB().Exec("UPDATE invoices SET paid_cents = 500 WHERE id = ?", created.ID).Error)

	_, err = f.svc.Void(f.ctx, domain.VoidInvoiceRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrHasPayments)
}

func TestGetInvoiceByPublicToken(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	found, err := f.svc.GetByPublicToken(context.Background(), domain.GetInvoiceByTokenRequest{
		Token: created.PublicToken,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Len(t, found.Lines, 1)

	_, err = f.svc.GetByPublicToken(context.Background(), domain.GetInvoiceByTokenRequest{
		Token: "nope",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendInvoiceEmailsPDF(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Send(f.ctx, domain.SendInvoiceRequest{ID: created.ID.String()}))

	require.Len(t, f.email.sent, 1)
	msg := f.email.sent[0]
	assert.Equal(t, "budi@example.com", msg.To)
	assert.NotEmpty(t, msg.Attachment)
	assert.Equal(t, fmt.Sprintf("invoice-%s.pdf", created.Number), msg.Filename)
}

func TestSendInvoiceNoRecipient(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	require.NoError(t, f.gw.DB().Exec("UPDATE customers SET email = '' WHERE id = ?", f.customer.ID).Error)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	err = f.svc.Send(f.ctx, domain.SendInvoiceRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNoRecipient)
	assert.Empty(t, f.email.sent)
}

func TestListInvoicesByStatus(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 50)

	var voidedID string
	for i := 0; i < 3; i++ {
		created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
			CustomerID: f.customer.ID.String(),
			Lines: []domain.CreateInvoiceLine{
				{ProductID: product.ID.String(), Quantity: 1},
			},
		})
		require.NoError(t, err)
		if i == 0 {
			voidedID = created.ID.String()
		}
	}

	_, err := f.svc.Void(f.ctx, domain.VoidInvoiceRequest{ID: voidedID})
	require.NoError(t, err)

	issued, err := f.svc.List(f.ctx, domain.ListInvoiceRequest{Status: "issued"})
	require.NoError(t, err)
	assert.Len(t, issued.Invoices, 2)

	voided, err := f.svc.List(f.ctx, domain.ListInvoiceRequest{Status: "void"})
	require.NoError(t, err)
	assert.Len(t, voided.Invoices, 1)
}

func TestRenderPDF(t *testing.T) {
	f := newInvoiceFixture(t)
	product := f.seedProduct(t, "SKU-1", 1000, 5)

	created, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		CustomerID: f.customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{ProductID: product.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	data, err := f.svc.RenderPDF(f.ctx, domain.GetInvoiceRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	publicData, err := f.svc.RenderPublicPDF(context.Background(), domain.GetInvoiceByTokenRequest{
		Token: created.PublicToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, publicData)
}
