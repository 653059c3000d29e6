package db

import "time"

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

// GatewayConfig tunes the resilience behaviour of the Gateway. Zero values
// fall back to the defaults below.
type GatewayConfig struct {
	// ReconnectCooldown is the minimum time between two real reconnect
	// attempts. Rejections inside the window do not reset it.
	ReconnectCooldown time.Duration

	// ReconnectSettle is the pause between dropping the old connection pool
	// and dialing a new one.
	ReconnectSettle time.Duration

	// ProbeCacheTTL is how long a successful health probe is trusted
	// without re-querying the database.
	ProbeCacheTTL time.Duration

	// StartupAttempts and StartupBaseDelay drive the boot-time connect loop.
	// The delay grows linearly: StartupBaseDelay * attempt.
	StartupAttempts  int
	StartupBaseDelay time.Duration
}

const (
	defaultReconnectCooldown = 30 * time.Second
	defaultReconnectSettle   = 2 * time.Second
	defaultProbeCacheTTL     = 60 * time.Second
	defaultStartupAttempts   = 5
	defaultStartupBaseDelay  = 2 * time.Second
)

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.ReconnectCooldown <= 0 {
		c.ReconnectCooldown = defaultReconnectCooldown
	}
	if c.ReconnectSettle <= 0 {
		c.ReconnectSettle = defaultReconnectSettle
	}
	if c.ProbeCacheTTL <= 0 {
		c.ProbeCacheTTL = defaultProbeCacheTTL
	}
	if c.StartupAttempts <= 0 {
		c.StartupAttempts = defaultStartupAttempts
	}
	if c.StartupBaseDelay <= 0 {
		c.StartupBaseDelay = defaultStartupBaseDelay
	}
	return c
}
