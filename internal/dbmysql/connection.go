package dbmysql

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gomodmail/internal/config"
	"gomodmail/internal/logging"
)

// NewDatabase returns a GORM DB for the configured driver (mysql or sqlite).
func NewDatabase(cnf *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cnf.Database.Driver {
	case "sqlite":
		if cnf.Database.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is not set")
		}
		dialector = sqlite.Open(cnf.Database.SQLitePath)
	case "", "mysql":
		dialector = mysql.Open(cnf.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cnf.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", cnf.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql.DB error: %w", err)
	}
	if cnf.Database.Driver == "sqlite" {
		// every :memory: connection is its own database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cnf.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cnf.Database.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logging.Get().Infof("✅ Connected to %s successfully", dialector.Name())
	return db, nil
}

// Migrate creates or updates the thread tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Thread{}, &ThreadMessage{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
