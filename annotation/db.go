package annotation

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/lewtec/demarca/internal/repository"
)

// GetDatabase opens the sqlite database and brings its schema up to date
func GetDatabase(filename string) (*sql.DB, error) {
	db, err := repository.Open(filename)
	if err != nil {
		return nil, err
	}
	if err := PrepareDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// PrepareDatabase applies pending migrations
func PrepareDatabase(db *sql.DB) error {
	log.Printf("PrepareDatabase: applying migrations")
	if err := repository.MigrateUp(db); err != nil {
		return fmt.Errorf("while migrating database: %w", err)
	}
	version, dirty, err := repository.MigrateVersion(db)
	if err != nil {
		return fmt.Errorf("while reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema version %d is dirty", version)
	}
	log.Printf("PrepareDatabase: schema at version %d", version)
	return nil
}
