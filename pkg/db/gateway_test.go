package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testHarness struct {
	gw        *Gateway
	clock     *testClock
	openCalls *atomic.Int64
	pingCalls *atomic.Int64
	openErr   func() error // nil result means open succeeds
	pingErr   func() error
}

func newHarness(t *testing.T, cfg GatewayConfig) *testHarness {
	t.Helper()

	h := &testHarness{
		clock:     &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		openCalls: &atomic.Int64{},
		pingCalls: &atomic.Int64{},
		openErr:   func() error { return nil },
		pingErr:   func() error { return nil },
	}

	gw := NewGateway(zap.NewNop(), cfg, func(ctx context.Context) (*gorm.DB, error) {
		h.openCalls.Add(1)
		if err := h.openErr(); err != nil {
			return nil, err
		}
		conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		require.NoError(t, err)
		return conn, nil
	})
	gw.now = h.clock.Now
	gw.sleep = func(_ context.Context, d time.Duration) error {
		h.clock.Advance(d)
		return nil
	}
	gw.ping = func(context.Context, *gorm.DB) error {
		h.pingCalls.Add(1)
		return h.pingErr()
	}

	h.gw = gw
	return h
}

func (h *testHarness) connect(t *testing.T) {
	t.Helper()
	h.gw.cfg.StartupAttempts = 1
	h.gw.ConnectOnStartup(context.Background())
	require.True(t, h.gw.Connected())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
		ok   bool
	}{
		{"nil", nil, "", false},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), KindRefused, true},
		{"reset", errors.New("read tcp: connection reset by peer"), KindReset, true},
		{"bad conn", driver.ErrBadConn, KindClosed, true},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindShutdown, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, KindPoolExhausted, true},
		{"invalid password", &pgconn.PgError{Code: "28P01"}, KindAuth, true},
		{"not connected", ErrNotConnected, KindNotConnected, true},
		{"duplicate key passes through", gorm.ErrDuplicatedKey, "", false},
		{"logic error passes through", errors.New("invalid invoice state"), "", false},
		{"statement error passes through", &pgconn.PgError{Code: "42703"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestExecuteWithRetryReconnectsOnceThenSucceeds(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	ops := 0
	err := h.gw.ExecuteWithRetry(context.Background(), func(conn *gorm.DB) error {
		ops++
		if ops == 1 {
			return errors.New("read tcp: connection reset by peer")
		}
		require.NotNil(t, conn)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, ops, "op runs exactly twice")
	assert.Equal(t, int64(2), h.openCalls.Load(), "one startup connect plus one reconnect")
	assert.True(t, h.gw.Connected())
}

func TestExecuteWithRetryDoesNotRetryUnclassifiedErrors(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	boom := errors.New("price must be positive")
	ops := 0
	err := h.gw.ExecuteWithRetry(context.Background(), func(*gorm.DB) error {
		ops++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ops)
	assert.Equal(t, int64(1), h.openCalls.Load(), "no reconnect for unclassified errors")
}

func TestExecuteWithRetryPropagatesReconnectFailure(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)
	h.openErr = func() error { return errors.New("dial tcp: connection refused") }

	ops := 0
	err := h.gw.ExecuteWithRetry(context.Background(), func(*gorm.DB) error {
		ops++
		return errors.New("write: broken pipe")
	})

	require.Error(t, err)
	assert.Equal(t, 1, ops, "op is not re-run when reconnect fails")
	assert.False(t, h.gw.Connected())
}

func TestReconnectCooldownFailsFast(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	require.NoError(t, h.gw.Reconnect(context.Background()))
	opens := h.openCalls.Load()

	h.clock.Advance(5 * time.Second)
	err := h.gw.Reconnect(context.Background())
	require.ErrorIs(t, err, ErrReconnectCooldown)
	assert.Equal(t, opens, h.openCalls.Load(), "no connect attempt during cooldown")

	h.clock.Advance(26 * time.Second)
	require.NoError(t, h.gw.Reconnect(context.Background()))
	assert.Equal(t, opens+1, h.openCalls.Load())
}

func TestReconnectHonorsConfiguredSettle(t *testing.T) {
	h := newHarness(t, GatewayConfig{ReconnectSettle: time.Millisecond})
	h.connect(t)

	var slept []time.Duration
	h.gw.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		h.clock.Advance(d)
		return nil
	}

	h.clock.Advance(time.Minute)
	require.NoError(t, h.gw.Reconnect(context.Background()))
	require.Len(t, slept, 1)
	assert.Equal(t, time.Millisecond, slept[0], "settle pause comes from config, not the default")
}

func TestReconnectMutualExclusion(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	gate := make(chan struct{})
	dialErr := errors.New("dial tcp: connection refused")
	h.openErr = func() error {
		<-gate
		return dialErr
	}

	results := make(chan error, 2)
	go func() { results <- h.gw.Reconnect(context.Background()) }()

	// Wait for the first caller to own the in-flight attempt.
	require.Eventually(t, func() bool {
		h.gw.mu.Lock()
		defer h.gw.mu.Unlock()
		return h.gw.reconnecting
	}, time.Second, time.Millisecond)

	go func() { results <- h.gw.Reconnect(context.Background()) }()
	time.Sleep(10 * time.Millisecond) // let the follower park on the flight
	close(gate)

	err1 := <-results
	err2 := <-results
	require.ErrorIs(t, err1, dialErr)
	require.ErrorIs(t, err2, dialErr, "followers receive the owner's outcome")
	assert.Equal(t, int64(2), h.openCalls.Load(), "startup plus exactly one reconnect attempt")
}

func TestHealthProbeCachesSuccess(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	h.clock.Advance(2 * time.Minute) // expire the startup probe
	health := h.gw.HealthProbe(context.Background())
	require.True(t, health.Connected)
	probes := h.pingCalls.Load()

	h.clock.Advance(30 * time.Second)
	health = h.gw.HealthProbe(context.Background())
	require.True(t, health.Connected)
	assert.Equal(t, probes, h.pingCalls.Load(), "cached result, zero queries")
}

func TestHealthProbeSkipsKnownDownBackend(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)
	h.openErr = func() error { return errors.New("dial tcp: connection refused") }

	require.Error(t, h.gw.Reconnect(context.Background()))
	probes := h.pingCalls.Load()

	h.clock.Advance(5 * time.Second)
	health := h.gw.HealthProbe(context.Background())
	assert.False(t, health.Connected)
	assert.Equal(t, ErrReconnectCooldown.Error(), health.Error)
	assert.Equal(t, probes, h.pingCalls.Load(), "no probe while reconnect cooldown is active")
}

func TestHealthProbeFailureTriggersBackgroundReconnect(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	h.clock.Advance(2 * time.Minute)
	h.pingErr = func() error { return errors.New("read tcp: connection reset by peer") }

	opens := h.openCalls.Load()
	health := h.gw.HealthProbe(context.Background())
	assert.False(t, health.Connected)
	assert.NotEmpty(t, health.Error)

	// One fire-and-forget reconnect, its error swallowed.
	require.Eventually(t, func() bool {
		return h.openCalls.Load() == opens+1
	}, time.Second, time.Millisecond)
}

func TestHealthProbeWhileReconnecting(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	h.connect(t)

	gate := make(chan struct{})
	h.openErr = func() error {
		<-gate
		return nil
	}
	go func() { _ = h.gw.Reconnect(context.Background()) }()
	require.Eventually(t, func() bool {
		h.gw.mu.Lock()
		defer h.gw.mu.Unlock()
		return h.gw.reconnecting
	}, time.Second, time.Millisecond)

	probes := h.pingCalls.Load()
	health := h.gw.HealthProbe(context.Background())
	assert.False(t, health.Connected)
	assert.Equal(t, "reconnect in progress", health.Error)
	assert.Equal(t, probes, h.pingCalls.Load())

	close(gate)
}

func TestConnectOnStartupExhaustionContinuesDisconnected(t *testing.T) {
	h := newHarness(t, GatewayConfig{StartupAttempts: 3, StartupBaseDelay: time.Second})
	h.openErr = func() error { return errors.New("dial tcp: connection refused") }

	start := h.clock.Now()
	h.gw.ConnectOnStartup(context.Background())

	assert.False(t, h.gw.Connected())
	assert.Nil(t, h.gw.DB())
	assert.Equal(t, int64(3), h.openCalls.Load())
	// Linear backoff between attempts: 1s + 2s.
	assert.Equal(t, 3*time.Second, h.clock.Now().Sub(start))
}

func TestStartupFailureDoesNotBlockRuntimeRecovery(t *testing.T) {
	h := newHarness(t, GatewayConfig{StartupAttempts: 1})
	h.openErr = func() error { return errors.New("dial tcp: connection refused") }
	h.gw.ConnectOnStartup(context.Background())
	require.False(t, h.gw.Connected())

	// Backend comes back; first real traffic recovers through the gateway.
	h.openErr = func() error { return nil }
	err := h.gw.ExecuteWithRetry(context.Background(), func(conn *gorm.DB) error {
		require.NotNil(t, conn)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, h.gw.Connected())
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New(`duplicate key value violates unique constraint "ux_invoices_shop_number"`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: invoices.invoice_number")))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}
