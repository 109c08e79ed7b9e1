package database

import (
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		// Duplicate-key violations surface as gorm.ErrDuplicatedKey; the
		// idempotency guard's insert-or-fetch depends on this.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Booking{},
		&models.Payment{},
		&models.Refund{},
		&models.WebhookEvent{},
		&models.AuditEntry{},
	)
}
