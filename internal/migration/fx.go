package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/seed"
	"github.com/smallbiznis/kasira/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module runs migrations and seeds on boot. A disconnected gateway is
// not fatal; the gateway keeps reconnecting and migrations apply on the
// next restart once the database is back.
var Module = fx.Module("migrations",
	fx.Invoke(func(gw *db.Gateway, cfg config.Config, log *zap.Logger) error {
		conn := gw.DB()
		if conn == nil {
			log.Warn("database unavailable at boot, skipping migrations and seed")
			return nil
		}

		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			log.Info("non-postgres database, skipping versioned migrations", zap.String("db_type", cfg.DBType))
		}

		return seed.EnsureDefaultShop(conn, log, snowflake.ID(cfg.DefaultShopID))
	}),
)
