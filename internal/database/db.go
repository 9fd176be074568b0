package database

import (
	"fmt"
	"log"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"              // SQLite driver

	"toastem/internal/catalog"
	"toastem/internal/models"
)

var DB *gorm.DB

// InitDB initializes the database connection. driver is either "sqlite3"
// or "postgres".
func InitDB(driver, dsn string) error {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	var err error
	DB, err = gorm.Open(driver, dsn)
	if err != nil {
		return err
	}
	if driver == "sqlite3" {
		// one connection so a :memory: database is shared by every query
		DB.DB().SetMaxOpenConns(1)
		DB.Exec("PRAGMA foreign_keys = ON")
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// Migrate creates the schema and synchronizes the stage table with the
// catalog.
func Migrate(db *gorm.DB, c *catalog.Catalog) error {
	err := db.AutoMigrate(
		&models.Farm{},
		&models.Batch{},
		&models.Stage{},
		&models.StageRecord{},
		&models.AuditEntry{},
	).Error
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return seedStages(db, c)
}

// seedStages inserts missing catalog stages and refuses to start when a
// stored stage disagrees with the catalog.
func seedStages(db *gorm.DB, c *catalog.Catalog) error {
	var stored []models.Stage
	if err := db.Find(&stored).Error; err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	byName := make(map[string]models.Stage, len(stored))
	for _, s := range stored {
		byName[s.Name] = s
	}

	for _, def := range c.List() {
		existing, ok := byName[def.Name]
		if !ok {
			stage := models.Stage{ID: def.ID, Name: def.Name, Label: def.Label, Order: def.Order}
			if err := db.Create(&stage).Error; err != nil {
				return fmt.Errorf("seed stage %s: %w", def.Name, err)
			}
			log.Printf("Seeded stage %s (id=%d, order=%d)", def.Name, def.ID, def.Order)
			continue
		}
		if existing.ID != def.ID || existing.Order != def.Order {
			return &catalog.ConfigurationError{
				Stage:  def.Name,
				Reason: fmt.Sprintf("stored as id=%d order=%d, catalog has id=%d order=%d", existing.ID, existing.Order, def.ID, def.Order),
			}
		}
	}
	return nil
}
