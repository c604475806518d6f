package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lewtec/demarca/internal/domain"
)

const imageColumns = `id, project_id, filename, original_path, storage_path, sha256, width, height, size, format, status, annotated_at, created_at`

// ImageRepository implements domain.ImageRepository over sqlite
type ImageRepository struct {
	db DBTX
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// NewImageRepositoryWithTx creates a new ImageRepository with a transaction
func NewImageRepositoryWithTx(tx *sql.Tx) *ImageRepository {
	return &ImageRepository{db: tx}
}

// Create creates a new image record. New images are always pending.
func (r *ImageRepository) Create(ctx context.Context, img *domain.Image) (*domain.Image, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO images (project_id, filename, original_path, storage_path, sha256, width, height, size, format, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ProjectID, img.Filename, img.OriginalPath, img.StoragePath, img.SHA256,
		img.Width, img.Height, img.Size, img.Format, string(domain.StatusPending))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Get retrieves an image by ID
func (r *ImageRepository) Get(ctx context.Context, id int64) (*domain.Image, error) {
	return r.getOne(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
}

// GetBySHA256 retrieves an image of a project by its content hash
func (r *ImageRepository) GetBySHA256(ctx context.Context, projectID int64, sha256 string) (*domain.Image, error) {
	return r.getOne(ctx, `SELECT `+imageColumns+` FROM images WHERE project_id = ? AND sha256 = ? ORDER BY id LIMIT 1`, projectID, sha256)
}

// GetByFilename retrieves an image of a project by its stored filename
func (r *ImageRepository) GetByFilename(ctx context.Context, projectID int64, filename string) (*domain.Image, error) {
	return r.getOne(ctx, `SELECT `+imageColumns+` FROM images WHERE project_id = ? AND filename = ? ORDER BY id LIMIT 1`, projectID, filename)
}

// GetByOriginalPath retrieves an image of a project by the path it was imported from
func (r *ImageRepository) GetByOriginalPath(ctx context.Context, projectID int64, path string) (*domain.Image, error) {
	return r.getOne(ctx, `SELECT `+imageColumns+` FROM images WHERE project_id = ? AND original_path = ? ORDER BY id LIMIT 1`, projectID, path)
}

func (r *ImageRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Image, error) {
	img, err := scanImage(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return img, err
}

// List retrieves the images of a project in import order
func (r *ImageRepository) List(ctx context.Context, projectID int64) ([]*domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, img)
	}
	return result, rows.Err()
}

// Count returns the number of images of a project
func (r *ImageRepository) Count(ctx context.Context, projectID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE project_id = ?`, projectID).Scan(&n)
	return n, err
}

// CountByStatus returns the number of images of a project with a status
func (r *ImageRepository) CountByStatus(ctx context.Context, projectID int64, status domain.ImageStatus) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE project_id = ? AND status = ?`, projectID, string(status)).Scan(&n)
	return n, err
}

// RefreshStatus re-derives the status from the current annotation set.
// annotated_at is stamped on the pending to annotated transition and cleared
// when the image becomes pending again.
func (r *ImageRepository) RefreshStatus(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE images SET
  status = CASE WHEN EXISTS (SELECT 1 FROM annotations WHERE image_id = images.id) THEN 'annotated' ELSE 'pending' END,
  annotated_at = CASE
    WHEN NOT EXISTS (SELECT 1 FROM annotations WHERE image_id = images.id) THEN NULL
    WHEN annotated_at IS NULL THEN CURRENT_TIMESTAMP
    ELSE annotated_at
  END
WHERE id = ?`, id)
	return err
}

// RefreshProjectStatuses re-derives the status of every image of a project
func (r *ImageRepository) RefreshProjectStatuses(ctx context.Context, projectID int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE images SET
  status = CASE WHEN EXISTS (SELECT 1 FROM annotations WHERE image_id = images.id) THEN 'annotated' ELSE 'pending' END,
  annotated_at = CASE
    WHEN NOT EXISTS (SELECT 1 FROM annotations WHERE image_id = images.id) THEN NULL
    WHEN annotated_at IS NULL THEN CURRENT_TIMESTAMP
    ELSE annotated_at
  END
WHERE project_id = ?`, projectID)
	return err
}

// Delete removes an image and its annotations
func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE image_id = ?`, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	return err
}

func scanImage(row rowScanner) (*domain.Image, error) {
	var (
		img         domain.Image
		status      string
		annotatedAt sql.NullTime
	)
	err := row.Scan(&img.ID, &img.ProjectID, &img.Filename, &img.OriginalPath, &img.StoragePath,
		&img.SHA256, &img.Width, &img.Height, &img.Size, &img.Format, &status, &annotatedAt, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	img.Status = domain.ImageStatus(status)
	if annotatedAt.Valid {
		t := annotatedAt.Time
		img.AnnotatedAt = &t
	}
	return &img, nil
}

// Verify that ImageRepository implements domain.ImageRepository
var _ domain.ImageRepository = (*ImageRepository)(nil)
