package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/internal/shop/repository"
	"github.com/smallbiznis/kasira/internal/shop/service"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newShopService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:shopsvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Shop{}))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))

	node, err := snowflake.NewNode(17)
	require.NoError(t, err)

	return service.New(service.Params{
		Gateway: gw,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
	})
}

func TestCreateShopSlugAndDefaults(t *testing.T) {
	svc := newShopService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateShopRequest{Name: "Warung Kopi Budi"})
	require.NoError(t, err)
	assert.Equal(t, "warung-kopi-budi", created.Slug)
	assert.Equal(t, "IDR", created.Currency)
	assert.Zero(t, created.TaxRate)

	_, err = svc.Create(ctx, domain.CreateShopRequest{Name: "Warung Kopi Budi"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestCreateShopTaxRateBounds(t *testing.T) {
	svc := newShopService(t)

	_, err := svc.Create(context.Background(), domain.CreateShopRequest{Name: "A", TaxRate: -0.1})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)

	_, err = svc.Create(context.Background(), domain.CreateShopRequest{Name: "A", TaxRate: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
}

func TestUpdateShopTaxRate(t *testing.T) {
	svc := newShopService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateShopRequest{Name: "Main", TaxRate: 0.10})
	require.NoError(t, err)

	rate := 0.11
	updated, err := svc.Update(ctx, domain.UpdateShopRequest{
		ID:      created.ID.String(),
		TaxRate: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.11, updated.TaxRate)
	assert.Equal(t, "Main", updated.Name)

	bad := 2.0
	_, err = svc.Update(ctx, domain.UpdateShopRequest{ID: created.ID.String(), TaxRate: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
}

func TestGetShopNotFound(t *testing.T) {
	svc := newShopService(t)

	node, err := snowflake.NewNode(18)
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), domain.GetShopRequest{ID: node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(context.Background(), domain.GetShopRequest{ID: "abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
