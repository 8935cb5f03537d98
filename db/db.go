package db

import (
	"fmt"

	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Init opens the connection pool and installs the tenant guard. Migrations
// only run when the caller asks for them.
func Init(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	level := gormlogger.Warn
	if cfg.AppEnv == "production" {
		level = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := tenant.RegisterGuard(db); err != nil {
		return nil, fmt.Errorf("failed to register tenant guard: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}
