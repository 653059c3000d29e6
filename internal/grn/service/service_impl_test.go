package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kasira/internal/grn/domain"
	"github.com/smallbiznis/kasira/internal/grn/repository"
	"github.com/smallbiznis/kasira/internal/grn/service"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	productrepo "github.com/smallbiznis/kasira/internal/product/repository"
	supplierdomain "github.com/smallbiznis/kasira/internal/supplier/domain"
	supplierrepo "github.com/smallbiznis/kasira/internal/supplier/repository"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type grnFixture struct {
	svc      domain.Service
	gw       *db.Gateway
	node     *snowflake.Node
	shopID   snowflake.ID
	supplier supplierdomain.Supplier
	product  productdomain.Product
	ctx      context.Context
}

func newGRNFixture(t *testing.T) *grnFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:grnsvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&supplierdomain.Supplier{},
		&productdomain.Product{},
		&productdomain.StockMovement{},
		&domain.GRN{},
		&domain.GRNLine{},
	))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))

	node, err := snowflake.NewNode(13)
	require.NoError(t, err)
	shopID := node.Generate()

	now := time.Now().UTC()
	supplier := supplierdomain.Supplier{
		ID: node.Generate(), ShopID: shopID, Name: "PT Sumber",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&supplier).Error)

	product := productdomain.Product{
		ID: node.Generate(), ShopID: shopID, SKU: "SKU-1", Name: "Kopi",
		PriceCents: 25000, StockQty: 0,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&product).Error)

	svc := service.New(service.Params{
		Gateway:      gw,
		Log:          zap.NewNop(),
		GenID:        node,
		Repo:         repository.Provide(),
		ProductRepo:  productrepo.Provide(),
		SupplierRepo: supplierrepo.Provide(),
	})

	return &grnFixture{
		svc:      svc,
		gw:       gw,
		node:     node,
		shopID:   shopID,
		supplier: supplier,
		product:  product,
		ctx:      shopctx.WithShopID(context.Background(), shopID),
	}
}

func TestCreateGRNSequentialNumbers(t *testing.T) {
	f := newGRNFixture(t)
	year := time.Now().UTC().Year()

	first, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 10, UnitCostCents: 15000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("GRN-%d-0001", year), first.Number)
	assert.Equal(t, domain.GRNStatusDraft, first.Status)
	assert.Equal(t, int64(150000), first.TotalCostCents)

	second, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 1, UnitCostCents: 15000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("GRN-%d-0002", year), second.Number)
}

func TestCreateGRNDraftDoesNotTouchStock(t *testing.T) {
	f := newGRNFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 10, UnitCostCents: 15000},
		},
	})
	require.NoError(t, err)

	var stock int64
	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", f.product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(0), stock)
}

func TestCreateGRNValidation(t *testing.T) {
	f := newGRNFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)

	_, err = f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 0, UnitCostCents: 100},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)

	_, err = f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.node.Generate().String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 1, UnitCostCents: 100},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSupplier)

	_, err = f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.node.Generate().String(), Quantity: 1, UnitCostCents: 100},
		},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)
}

func TestReceiveGRNAddsStockOnce(t *testing.T) {
	f := newGRNFixture(t)

	created, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 10, UnitCostCents: 15000},
		},
	})
	require.NoError(t, err)

	received, err := f.svc.Receive(f.ctx, domain.ReceiveGRNRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.GRNStatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)

	var stock int64
	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", f.product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(10), stock)

	var movementQty int64
	require.NoError(t, f.gw.DB().Raw(
		"SELECT quantity FROM stock_movements WHERE product_id = ? AND kind = ?",
		f.product.ID, productdomain.MovementKindGRN,
	).Scan(&movementQty).Error)
	assert.Equal(t, int64(10), movementQty)

	_, err = f.svc.Receive(f.ctx, domain.ReceiveGRNRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyReceived)

	require.NoError(t, f.gw.DB().Raw("SELECT stock_qty FROM products WHERE id = ?", f.product.ID).Scan(&stock).Error)
	assert.Equal(t, int64(10), stock, "second receive must not double stock")
}

func TestListGRNsByStatus(t *testing.T) {
	f := newGRNFixture(t)

	created, err := f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 1, UnitCostCents: 100},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, domain.CreateGRNRequest{
		SupplierID: f.supplier.ID.String(),
		Lines: []domain.CreateGRNLine{
			{ProductID: f.product.ID.String(), Quantity: 2, UnitCostCents: 100},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Receive(f.ctx, domain.ReceiveGRNRequest{ID: created.ID.String()})
	require.NoError(t, err)

	drafts, err := f.svc.List(f.ctx, domain.ListGRNRequest{Status: "draft"})
	require.NoError(t, err)
	assert.Len(t, drafts.GRNs, 1)

	receivedList, err := f.svc.List(f.ctx, domain.ListGRNRequest{Status: "received"})
	require.NoError(t, err)
	assert.Len(t, receivedList.GRNs, 1)
}
