package db

import (
	"context"
	"time"

	"github.com/smallbiznis/kasira/internal/config"
	obslogger "github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(NewFromConfig),
	fx.Invoke(registerHooks),
)

// NewFromConfig builds the gateway and runs the boot-time connect loop.
// A failed boot leaves the gateway disconnected rather than aborting the app.
func NewFromConfig(cfg config.Config, log *zap.Logger) *Gateway {
	dbCfg := Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}

	gw := NewGateway(log, GatewayConfig{
		ReconnectCooldown: time.Duration(cfg.DBReconnectCooldownSec) * time.Second,
		ProbeCacheTTL:     time.Duration(cfg.DBProbeCacheSec) * time.Second,
		StartupAttempts:   cfg.DBStartupAttempts,
	}, opener(dbCfg, cfg.AppName))

	gw.ConnectOnStartup(context.Background())
	return gw
}

func opener(dbCfg Config, appName string) OpenFunc {
	return func(ctx context.Context) (*gorm.DB, error) {
		dialector, err := Dialect(dbCfg)
		if err != nil {
			return nil, err
		}

		conn, err := gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
		})
		if err != nil {
			return nil, err
		}

		if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(dbCfg.Name))); err != nil {
			return nil, err
		}
		_ = conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          dbCfg.Name,
			RefreshInterval: 15,
		}))

		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		if dbCfg.MaxIdleConn > 0 {
			sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConn)
		}
		if dbCfg.MaxOpenConn > 0 {
			sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConn)
		}
		if dbCfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(dbCfg.ConnMaxLifetime) * time.Second)
		}
		if dbCfg.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(dbCfg.ConnMaxIdleTime) * time.Second)
		}

		return conn, nil
	}
}

func registerHooks(lc fx.Lifecycle, gw *Gateway) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return gw.Close()
		},
	})
}
