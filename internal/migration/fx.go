package migration

import (
	"github.com/smallbiznis/plantcare/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date: versioned migrations on postgres, AutoMigrate elsewhere.
func Apply(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	if cfg.Type != db.TypePostgres {
		log.Info("applying schema with auto migrate", zap.String("type", cfg.Type))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying postgres migrations")
	return RunMigrations(sqlDB)
}
