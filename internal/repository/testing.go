package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lewtec/demarca/internal/domain"
)

// SetupTestDB creates a migrated in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if err := db.Close(); err != nil {
		t.Errorf("failed to close test database: %v", err)
	}
}

// MustExec executes a SQL statement and fails the test if it errors
func MustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("failed to exec query: %v", err)
	}
}

// MustCreateProject creates a project with the given class names
func MustCreateProject(t *testing.T, db *sql.DB, name string, task domain.Task, classNames ...string) *domain.Project {
	t.Helper()
	var classes domain.ClassList
	for _, n := range classNames {
		classes, _ = classes.Add(n, domain.DefaultColor)
	}
	p, err := NewProjectRepository(db).Create(context.Background(), &domain.Project{
		Name:    name,
		Task:    task,
		Classes: classes,
	})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return p
}

// MustCreateImage creates an image record of the given size
func MustCreateImage(t *testing.T, db *sql.DB, projectID int64, filename string, width, height int) *domain.Image {
	t.Helper()
	img, err := NewImageRepository(db).Create(context.Background(), &domain.Image{
		ProjectID:   projectID,
		Filename:    filename,
		StoragePath: "images/" + filename,
		Width:       width,
		Height:      height,
	})
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	return img
}
