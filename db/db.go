package db

import (
	"fmt"
	"os"
	"path/filepath"

	"wabot/config"
	"wabot/logger"
	"wabot/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"go.uber.org/zap"
)

// Connect opens the database selected by cfg.Database (sqlite3 by default).
func Connect(cfg config.Configuration) (*gorm.DB, error) {
	var (
		database *gorm.DB
		err      error
	)

	switch cfg.Database {
	case "postgres", "postgresql":
		zap.L().Info("using postgresql connection", zap.String("host", cfg.DbHost), zap.String("db", cfg.DbName))
		path := "host=" + cfg.DbHost + " port=" + cfg.DbPort
		path += " user=" + cfg.DbUser + " dbname=" + cfg.DbName
		path += " password=" + cfg.DbPass
		database, err = gorm.Open("postgres", path)
	default:
		dbPath := cfg.DbPath
		if dbPath == "" {
			dbPath = "db/database.db"
		}
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		zap.L().Info("using sqlite3 connection", zap.String("path", dbPath))
		database, err = gorm.Open("sqlite3", dbPath)
		if err == nil {
			// sqlite serialises writers; a single connection avoids "database is locked"
			database.DB().SetMaxOpenConns(1)
		}
	}

	if err != nil {
		zap.L().Error("database connection failed", zap.Error(err))
		return nil, err
	}

	database.SetLogger(logger.NewGormLogger())
	database.LogMode(cfg.DbLog)

	return database, nil
}

// Migrate creates or updates every table, including the composite unique indexes
// the ingestion path relies on for idempotency.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(models.Tables...).Error; err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
