package data

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cairnway/cairnway/internal/core"
)

// Initialize opens the record store configured in cfg and migrates the
// schema. The sqlite engine is the default and requires no external services;
// postgres is available for larger deployments.
func Initialize(cfg *core.Config) (*gorm.DB, error) {
	// By default only log errors but enable full SQL query prints with debug mode.
	log := logger.Default.LogMode(logger.Error)
	if cfg.Debugging.DatabaseLoggingEnabled {
		log = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Database.Engine {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.Database.Filename)
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database engine %q", cfg.Database.Engine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema for every entity family.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Settlement{},
		&Site{},
		&Faction{},
		&FactionMember{},
		&MapRecord{},
		&SaveRecord{},
		&WorldRecord{},
		&DifficultyRecord{},
	)
	if err != nil {
		return fmt.Errorf("error auto migrating db: %w", err)
	}
	return nil
}

// Shutdown closes the underlying database connection.
func Shutdown(db *gorm.DB) error {
	database, err := db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}
