package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kasira/internal/apikey/domain"
	"github.com/smallbiznis/kasira/internal/apikey/repository"
	"github.com/smallbiznis/kasira/internal/apikey/service"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/smallbiznis/kasira/pkg/shopctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAPIKeyService(t *testing.T) (domain.Service, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:apikeysvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.APIKey{}))

	gw := db.NewGateway(zap.NewNop(), db.GatewayConfig{ReconnectSettle: time.Millisecond}, func(context.Context) (*gorm.DB, error) {
		return conn, nil
	})
	require.NoError(t, gw.Reconnect(context.Background()))

	node, err := snowflake.NewNode(14)
	require.NoError(t, err)

	svc := service.New(service.Params{
		Gateway: gw,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
	})

	return svc, node.Generate()
}

func TestCreateAndResolveAPIKey(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "register 1", Role: "cashier"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.APIKey, "ksk_"), "token %q", created.APIKey)
	assert.Equal(t, 3, len(strings.Split(created.APIKey, "_")))

	identity, err := svc.Resolve(context.Background(), created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, shopID, identity.ShopID)
	assert.Equal(t, created.KeyID, identity.KeyID)
	assert.Equal(t, domain.RoleCashier, identity.Role)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "register 1", Role: "owner"})
	require.NoError(t, err)

	cases := []string{
		"",
		"garbage",
		"ksk_" + created.KeyID,
		"ksk_" + created.KeyID + "_wrongsecret",
		strings.Replace(created.APIKey, "ksk_", "xxx_", 1),
	}
	for _, token := range cases {
		_, err := svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken, "token %q", token)
	}
}

func TestRevokeAPIKey(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "register 1", Role: "manager"})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, created.KeyID))

	_, err = svc.Resolve(context.Background(), created.APIKey)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.False(t, keys[0].IsActive)
}

func TestRotateAPIKeyKeepsGracePeriod(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "register 1", Role: "owner"})
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, created.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, created.KeyID, rotated.KeyID)
	assert.NotEqual(t, created.APIKey, rotated.APIKey)

	// Old credentials stay valid inside the grace window.
	oldIdentity, err := svc.Resolve(context.Background(), created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, shopID, oldIdentity.ShopID)

	newIdentity, err := svc.Resolve(context.Background(), rotated.APIKey)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, newIdentity.Role)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	var old, fresh *domain.Response
	for i := range keys {
		switch keys[i].KeyID {
		case created.KeyID:
			old = &keys[i]
		case rotated.KeyID:
			fresh = &keys[i]
		}
	}
	require.NotNil(t, old)
	require.NotNil(t, fresh)
	require.NotNil(t, old.ExpiresAt, "rotated-from key must carry a grace expiry")
	require.NotNil(t, fresh.RotatedFromKeyID)
	assert.Equal(t, created.KeyID, *fresh.RotatedFromKeyID)
}

func TestRotateUnknownKey(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	_, err := svc.Rotate(ctx, "01JUNKJUNKJUNKJUNKJUNKJUNK")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateAPIKeyValidation(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "", Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Role: "superadmin"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = svc.Create(context.Background(), domain.CreateRequest{Name: "x", Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidShop)
}

func TestAPIKeysScopedToShop(t *testing.T) {
	svc, shopID := newAPIKeyService(t)
	ctx := shopctx.WithShopID(context.Background(), shopID)

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "register 1", Role: "owner"})
	require.NoError(t, err)

	node, err := snowflake.NewNode(15)
	require.NoError(t, err)
	otherCtx := shopctx.WithShopID(context.Background(), node.Generate())

	_, err = svc.Rotate(otherCtx, created.KeyID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Revoke(otherCtx, created.KeyID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
