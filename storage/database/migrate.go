package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fitcoach/internal/model"
	"fitcoach/pkg/logger"
)

// Migrate 运行数据库迁移
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(&model.UserProfile{}); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
