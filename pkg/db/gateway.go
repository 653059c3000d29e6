package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotConnected is returned when an operation is attempted before any
	// connection has ever been established.
	ErrNotConnected = errors.New("database not connected")

	// ErrReconnectCooldown is returned when a reconnect is requested within
	// the cooldown window after a prior real attempt. Callers can surface it
	// as a "please wait" rather than a hard failure.
	ErrReconnectCooldown = errors.New("reconnect cooldown active")
)

// Health is the externally observable view of the gateway's connection state.
type Health struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// OpenFunc dials a fresh connection pool. The gateway owns the returned
// handle and closes it on the next reconnect.
type OpenFunc func(ctx context.Context) (*gorm.DB, error)

// reconnectFlight is the shared outcome of one in-flight reconnect attempt.
// All concurrent Reconnect callers wait on done and read the same err.
type reconnectFlight struct {
	done chan struct{}
	err  error
}

// Gateway wraps the gorm client with auto-reconnect, cooldown-guarded retry
// and non-cascading health probing. At most one physical reconnect attempt
// is in flight at any instant, process-wide.
type Gateway struct {
	log  *zap.Logger
	cfg  GatewayConfig
	open OpenFunc

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	ping  func(ctx context.Context, conn *gorm.DB) error

	mu           sync.Mutex // guards all state below
	conn         *gorm.DB
	connected    bool
	reconnecting bool
	lastAttempt  time.Time
	lastProbe    time.Time
	flight       *reconnectFlight
}

func NewGateway(log *zap.Logger, cfg GatewayConfig, open OpenFunc) *Gateway {
	g := &Gateway{
		log:   log.Named("db.gateway"),
		cfg:   cfg.withDefaults(),
		open:  open,
		now:   time.Now,
		sleep: sleepCtx,
	}
	g.ping = g.rawPing
	return g
}

// DB returns the current connection handle. It may be nil if the process
// booted disconnected and no reconnect has succeeded yet.
func (g *Gateway) DB() *gorm.DB {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn
}

// Connected reports the cached connection state without touching the database.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// ExecuteWithRetry runs op once against the current handle. On a
// connection-class failure it performs exactly one coordinated
// reconnect-and-retry cycle; any other failure propagates immediately.
func (g *Gateway) ExecuteWithRetry(ctx context.Context, op func(conn *gorm.DB) error) error {
	conn := g.DB()

	var err error
	if conn == nil {
		err = ErrNotConnected
	} else {
		err = op(conn)
	}

	if err == nil {
		g.markConnected()
		return nil
	}

	kind, retryable := Classify(err)
	if !retryable {
		return err
	}

	g.log.Warn("connection-class query failure",
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	g.markDisconnected()

	if rerr := g.Reconnect(ctx); rerr != nil {
		// Includes cooldown rejections: do not re-run op.
		return rerr
	}

	// Exactly one more attempt; its outcome is final.
	if err := op(g.DB()); err != nil {
		return err
	}
	g.markConnected()
	return nil
}

// Reconnect performs one mutex-guarded reconnect attempt. Concurrent callers
// during an in-flight attempt all receive that attempt's outcome. Attempts
// inside the cooldown window fail fast with ErrReconnectCooldown.
func (g *Gateway) Reconnect(ctx context.Context) error {
	g.mu.Lock()

	if g.flight != nil {
		flight := g.flight
		g.mu.Unlock()
		select {
		case <-flight.done:
			return flight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if since := g.now().Sub(g.lastAttempt); !g.lastAttempt.IsZero() && since < g.cfg.ReconnectCooldown {
		g.mu.Unlock()
		return ErrReconnectCooldown
	}

	// Real attempt: the cooldown window is measured from here, whether or
	// not the attempt succeeds.
	g.lastAttempt = g.now()
	g.reconnecting = true
	flight := &reconnectFlight{done: make(chan struct{})}
	g.flight = flight
	old := g.conn
	g.mu.Unlock()

	err := g.dial(ctx, old)

	g.mu.Lock()
	g.reconnecting = false
	g.flight = nil
	if err == nil {
		g.connected = true
	} else {
		g.connected = false
	}
	g.mu.Unlock()

	flight.err = err
	close(flight.done)

	if err != nil {
		g.log.Error("reconnect failed", zap.Error(err))
		return err
	}
	g.log.Info("reconnect succeeded")
	return nil
}

func (g *Gateway) dial(ctx context.Context, old *gorm.DB) error {
	if old != nil {
		if sqlDB, err := old.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	if err := g.sleep(ctx, g.cfg.ReconnectSettle); err != nil {
		return err
	}

	conn, err := g.open(ctx)
	if err != nil {
		return err
	}
	if err := g.ping(ctx, conn); err != nil {
		if sqlDB, derr := conn.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	return nil
}

// HealthProbe reports connection health for readiness endpoints. Probes are
// cached and never enter the retry path, so a polling load balancer cannot
// trigger reconnect storms against a dying backend.
func (g *Gateway) HealthProbe(ctx context.Context) Health {
	g.mu.Lock()
	now := g.now()
	switch {
	case g.reconnecting:
		g.mu.Unlock()
		return Health{Connected: false, Error: "reconnect in progress"}
	case g.connected && now.Sub(g.lastProbe) < g.cfg.ProbeCacheTTL:
		g.mu.Unlock()
		return Health{Connected: true}
	case !g.connected && !g.lastAttempt.IsZero() && now.Sub(g.lastAttempt) < g.cfg.ReconnectCooldown:
		g.mu.Unlock()
		return Health{Connected: false, Error: ErrReconnectCooldown.Error()}
	}
	conn := g.conn
	g.mu.Unlock()

	var err error
	if conn == nil {
		err = ErrNotConnected
	} else {
		// Bypass: the probe queries the handle directly and must never go
		// through ExecuteWithRetry, or a down backend would recurse into
		// the reconnect machinery on every poll.
		err = g.ping(ctx, conn)
	}

	if err == nil {
		g.mu.Lock()
		g.connected = true
		g.lastProbe = g.now()
		g.mu.Unlock()
		return Health{Connected: true}
	}

	g.markDisconnected()

	// Best-effort background recovery. The outcome is discarded; Reconnect
	// owns its own state transitions and logging.
	go func() {
		_ = g.Reconnect(context.Background())
	}()

	return Health{Connected: false, Error: err.Error()}
}

// ConnectOnStartup runs the boot-time connect loop: linearly backed-off
// attempts, each verified with a bypass ping. On exhaustion the process
// continues disconnected and relies on the runtime retry path.
func (g *Gateway) ConnectOnStartup(ctx context.Context) {
	cfg := g.cfg
	for attempt := 1; attempt <= cfg.StartupAttempts; attempt++ {
		conn, err := g.open(ctx)
		if err == nil {
			if perr := g.ping(ctx, conn); perr == nil {
				g.mu.Lock()
				g.conn = conn
				g.connected = true
				g.lastProbe = g.now()
				g.mu.Unlock()
				g.log.Info("database connected", zap.Int("attempt", attempt))
				return
			} else {
				if sqlDB, derr := conn.DB(); derr == nil {
					_ = sqlDB.Close()
				}
				err = perr
			}
		}

		g.log.Warn("database connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.StartupAttempts),
			zap.Error(err),
		)

		if attempt < cfg.StartupAttempts {
			if serr := g.sleep(ctx, cfg.StartupBaseDelay*time.Duration(attempt)); serr != nil {
				return
			}
		}
	}

	g.log.Error("database unavailable at startup, continuing disconnected")
}

// Close releases the underlying pool. Used from the fx OnStop hook.
func (g *Gateway) Close() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.connected = false
	g.mu.Unlock()

	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gateway) markConnected() {
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
}

func (g *Gateway) markDisconnected() {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}

func (g *Gateway) rawPing(ctx context.Context, conn *gorm.DB) error {
	var one int
	return conn.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
