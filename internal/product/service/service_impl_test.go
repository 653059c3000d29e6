package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kasira/internal/product/domain"
	"github.com/smallbiznis/kasira/internal/product/repository"
	"github.com/smallbiznis/kasira/internal/product/service"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestGateway(t *testing.T) *db.Gateway {
	t.Helper()

	dsn := fmt.Sprintf("file:productsvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Product{}, &domain.StockMovement{}))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))
	return gw
}

func newService(t *testing.T) (domain.Service, *db.Gateway, snowflake.ID) {
	t.Helper()

	gw := newTestGateway(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	svc := service.New(service.Params{
		Gateway: gw,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
	})

	return svc, gw, node.Generate()
}

func TestCreateProductRequiresShop(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(context.Background(), domain.CreateProductRequest{
		SKU:  "SKU-1",
		Name: "Kopi",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidShop)
}

func TestCreateProductNormalizesSKU(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{
		SKU:        " kopi-001 ",
		Name:       "Kopi Susu",
		PriceCents: 25000,
	})
	require.NoError(t, err)

	assert.Equal(t, "KOPI-001", created.SKU)
	assert.Equal(t, shopID, created.ShopID)
	assert.Equal(t, int64(0), created.StockQty)
	assert.False(t, created.Archived)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	_, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateProductRequest{SKU: "sku-1", Name: "B", PriceCents: 200})
	assert.ErrorIs(t, err, domain.ErrSKUTaken)
}

func TestCreateProductSameSKUAcrossShops(t *testing.T) {
	svc, _, shopID := newService(t)

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	otherShop := node.Generate()

	_, err = svc.Create(shopctx.WithShopID(context.Background(), shopID), domain.CreateProductRequest{
		SKU: "SKU-1", Name: "A", PriceCents: 100,
	})
	require.NoError(t, err)

	_, err = svc.Create(shopctx.WithShopID(context.Background(), otherShop), domain.CreateProductRequest{
		SKU: "SKU-1", Name: "B", PriceCents: 100,
	})
	assert.NoError(t, err)
}

func TestAdjustStock(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100})
	require.NoError(t, err)

	updated, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{
		ProductID: created.ID.String(),
		Quantity:  10,
		Note:      "opening stock",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.StockQty)

	updated, err = svc.AdjustStock(ctx, domain.AdjustStockRequest{
		ProductID: created.ID.String(),
		Quantity:  -4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), updated.StockQty)

	movements, err := svc.ListMovements(ctx, domain.ListMovementRequest{ProductID: created.ID.String()})
	require.NoError(t, err)
	require.Len(t, movements.Movements, 2)
	for _, m := range movements.Movements {
		assert.Equal(t, domain.MovementKindAdjustment, m.Kind)
	}
}

func TestAdjustStockNeverNegative(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, domain.AdjustStockRequest{ProductID: created.ID.String(), Quantity: 5})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, domain.AdjustStockRequest{ProductID: created.ID.String(), Quantity: -6})
	assert.ErrorIs(t, err, domain.ErrInsufficient)

	got, err := svc.GetByID(ctx, domain.GetProductRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.StockQty)
}

func TestAdjustStockZeroQuantity(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, domain.AdjustStockRequest{ProductID: created.ID.String(), Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestArchiveHidesFromDefaultList(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100})
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, domain.ArchiveProductRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	listed, err := svc.List(ctx, domain.ListProductRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.Products)

	listed, err = svc.List(ctx, domain.ListProductRequest{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, listed.Products, 1)
}

func TestUpdateProductPartial(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateProductRequest{SKU: "SKU-1", Name: "A", PriceCents: 100, CostCents: 40})
	require.NoError(t, err)

	newPrice := int64(150)
	updated, err := svc.Update(ctx, domain.UpdateProductRequest{
		ID:         created.ID.String(),
		PriceCents: &newPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.PriceCents)
	assert.Equal(t, int64(40), updated.CostCents)
	assert.Equal(t, "A", updated.Name)
}

func TestGetProductScopedToShop(t *testing.T) {
	svc, _, shopID := newService(t)

	created, err := svc.Create(shopctx.WithShopID(context.Background(), shopID), domain.CreateProductRequest{
		SKU: "SKU-1", Name: "A", PriceCents: 100,
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	otherCtx := shopctx.WithShopID(context.Background(), node.Generate())

	_, err = svc.GetByID(otherCtx, domain.GetProductRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProductsPagination(t *testing.T) {
	svc, _, shopID := newService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, domain.CreateProductRequest{
			SKU:        fmt.Sprintf("SKU-%d", i),
			Name:       fmt.Sprintf("Product %d", i),
			PriceCents: 100,
		})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, domain.ListProductRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, first.Products, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	seen := map[string]bool{}
	for _, p := range first.Products {
		seen[p.SKU] = true
	}

	second, err := svc.List(ctx, domain.ListProductRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, second.Products, 2)
	for _, p := range second.Products {
		assert.False(t, seen[p.SKU], "page overlap on %s", p.SKU)
	}
}
