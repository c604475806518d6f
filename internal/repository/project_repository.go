package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lewtec/demarca/internal/domain"
)

const projectColumns = `id, name, description, task, classes, storage_path, angle_unit, created_at`

// ProjectRepository implements domain.ProjectRepository over sqlite
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// NewProjectRepositoryWithTx creates a new ProjectRepository with a transaction
func NewProjectRepositoryWithTx(tx *sql.Tx) *ProjectRepository {
	return &ProjectRepository{db: tx}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	task, err := domain.ParseTask(string(p.Task))
	if err != nil {
		return nil, err
	}
	unit, err := domain.ParseAngleUnit(string(p.AngleUnit))
	if err != nil {
		return nil, err
	}
	classes, err := marshalClasses(p.Classes)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO projects (name, description, task, classes, storage_path, angle_unit)
VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, string(task), classes, p.StoragePath, string(unit))
	if err != nil {
		return nil, fmt.Errorf("while creating project '%s': %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetByName retrieves a project by its unique name
func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// List retrieves all projects
func (r *ProjectRepository) List(ctx context.Context) ([]*domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateClasses replaces the persisted class list
func (r *ProjectRepository) UpdateClasses(ctx context.Context, id int64, classes domain.ClassList) error {
	if err := classes.Validate(); err != nil {
		return err
	}
	data, err := marshalClasses(classes)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET classes = ? WHERE id = ?`, data, id)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Sprintf("project %d", id))
}

// Delete removes a project with its images and annotations
func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p                   domain.Project
		task, classes, unit string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &task, &classes, &p.StoragePath, &unit, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Task = domain.Task(task)
	p.AngleUnit = domain.AngleUnit(unit)
	if err := json.Unmarshal([]byte(classes), &p.Classes); err != nil {
		return nil, fmt.Errorf("while decoding classes of project %d: %w", p.ID, domain.ErrMalformedInput)
	}
	return &p, nil
}

func marshalClasses(classes domain.ClassList) (string, error) {
	if classes == nil {
		classes = domain.ClassList{}
	}
	data, err := json.Marshal(classes)
	if err != nil {
		return "", fmt.Errorf("while encoding classes: %w", err)
	}
	return string(data), nil
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// Verify that ProjectRepository implements domain.ProjectRepository
var _ domain.ProjectRepository = (*ProjectRepository)(nil)
