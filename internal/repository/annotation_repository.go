package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lewtec/demarca/internal/domain"
)

const annotationColumns = `id, image_id, project_id, class_id, class_name, type, data, attributes, created_at, updated_at`

// AnnotationRepository implements domain.AnnotationRepository over sqlite.
// Writes that change the annotation set of an image also re-derive its status
// through the same DBTX, so they are atomic when the repository is bound to a
// transaction.
type AnnotationRepository struct {
	db     DBTX
	images *ImageRepository
}

// NewAnnotationRepository creates a new AnnotationRepository
func NewAnnotationRepository(db *sql.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db, images: NewImageRepository(db)}
}

// NewAnnotationRepositoryWithTx creates a new AnnotationRepository with a transaction
func NewAnnotationRepositoryWithTx(tx *sql.Tx) *AnnotationRepository {
	return &AnnotationRepository{db: tx, images: NewImageRepositoryWithTx(tx)}
}

// Create inserts an annotation and re-derives the image status
func (r *AnnotationRepository) Create(ctx context.Context, a *domain.Annotation) (*domain.Annotation, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	data, err := a.MarshalData()
	if err != nil {
		return nil, err
	}
	attrs, err := a.MarshalAttributes()
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO annotations (image_id, project_id, class_id, class_name, type, data, attributes)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ImageID, a.ProjectID, a.ClassID, a.ClassName, string(a.Type), string(data), string(attrs))
	if err != nil {
		return nil, fmt.Errorf("while inserting annotation on image %d: %w", a.ImageID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := r.images.RefreshStatus(ctx, a.ImageID); err != nil {
		return nil, fmt.Errorf("while refreshing status of image %d: %w", a.ImageID, err)
	}
	return r.Get(ctx, id)
}

// Get retrieves an annotation by ID
func (r *AnnotationRepository) Get(ctx context.Context, id int64) (*domain.Annotation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id)
	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// Update rewrites class, type, geometry and attributes of an existing annotation
func (r *AnnotationRepository) Update(ctx context.Context, a *domain.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := a.MarshalData()
	if err != nil {
		return err
	}
	attrs, err := a.MarshalAttributes()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE annotations
SET class_id = ?, class_name = ?, type = ?, data = ?, attributes = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`,
		a.ClassID, a.ClassName, string(a.Type), string(data), string(attrs), a.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Sprintf("annotation %d", a.ID))
}

// Delete removes an annotation and re-derives the image status
func (r *AnnotationRepository) Delete(ctx context.Context, id int64) error {
	var imageID int64
	err := r.db.QueryRowContext(ctx, `SELECT image_id FROM annotations WHERE id = ?`, id).Scan(&imageID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("annotation %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id); err != nil {
		return err
	}
	return r.images.RefreshStatus(ctx, imageID)
}

// ListForImage lists the annotations of an image in drawing order
func (r *AnnotationRepository) ListForImage(ctx context.Context, imageID int64) ([]*domain.Annotation, error) {
	return r.list(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE image_id = ? ORDER BY id`, imageID)
}

// ListForProject lists every annotation of a project
func (r *AnnotationRepository) ListForProject(ctx context.Context, projectID int64) ([]*domain.Annotation, error) {
	return r.list(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE project_id = ? ORDER BY image_id, id`, projectID)
}

func (r *AnnotationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Annotation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// CountForImage returns the number of annotations on an image
func (r *AnnotationRepository) CountForImage(ctx context.Context, imageID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations WHERE image_id = ?`, imageID).Scan(&n)
	return n, err
}

// DeleteForImage removes all annotations of an image and marks it pending
func (r *AnnotationRepository) DeleteForImage(ctx context.Context, imageID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE image_id = ?`, imageID)
	if err != nil {
		return 0, err
	}
	if err := r.images.RefreshStatus(ctx, imageID); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByIDs removes the given annotations of one image and re-derives its status
func (r *AnnotationRepository) DeleteByIDs(ctx context.Context, imageID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	args = append([]any{imageID}, args...)
	res, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE image_id = ? AND id IN (`+in+`)`, args...)
	if err != nil {
		return 0, err
	}
	if err := r.images.RefreshStatus(ctx, imageID); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByClass removes every annotation of a class in a project. Image
// statuses are left to the caller.
func (r *AnnotationRepository) DeleteByClass(ctx context.Context, projectID int64, classID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE project_id = ? AND class_id = ?`, projectID, classID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Relabel moves annotations of one image to another class. Classify payloads carry the
// class id, so their data is rewritten too.
func (r *AnnotationRepository) Relabel(ctx context.Context, imageID int64, ids []int64, classID int, className string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	args = append([]any{classID, className, classID, imageID}, args...)
	res, err := r.db.ExecContext(ctx, `
UPDATE annotations
SET class_id = ?, class_name = ?,
    data = CASE WHEN type = 'classify' THEN json_object('class_id', ?) ELSE data END,
    updated_at = CURRENT_TIMESTAMP
WHERE image_id = ? AND id IN (`+in+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemapClass rewrites class_id and class_name from oldID to newID
func (r *AnnotationRepository) RemapClass(ctx context.Context, projectID int64, oldID, newID int, name string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE annotations
SET class_id = ?, class_name = ?,
    data = CASE WHEN type = 'classify' THEN json_object('class_id', ?) ELSE data END
WHERE project_id = ? AND class_id = ?`, newID, name, newID, projectID, oldID)
	return err
}

// CountOutside returns how many annotations of a project reference a class id
// outside [0, classes)
func (r *AnnotationRepository) CountOutside(ctx context.Context, projectID int64, classes int) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM annotations WHERE project_id = ? AND (class_id < 0 OR class_id >= ?)`,
		projectID, classes).Scan(&n)
	return n, err
}

// Stats returns project level counts
func (r *AnnotationRepository) Stats(ctx context.Context, projectID int64) (*domain.AnnotationStats, error) {
	stats := &domain.AnnotationStats{PerClass: map[int]int64{}}
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT image_id) FROM annotations WHERE project_id = ?`, projectID).
		Scan(&stats.TotalAnnotations, &stats.AnnotatedImages)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT class_id, COUNT(*) FROM annotations WHERE project_id = ? GROUP BY class_id ORDER BY class_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var classID int
		var n int64
		if err := rows.Scan(&classID, &n); err != nil {
			return nil, err
		}
		stats.PerClass[classID] = n
	}
	return stats, rows.Err()
}

func scanAnnotation(row rowScanner) (*domain.Annotation, error) {
	var (
		a                domain.Annotation
		typ, data, attrs string
	)
	err := row.Scan(&a.ID, &a.ImageID, &a.ProjectID, &a.ClassID, &a.ClassName, &typ, &data, &attrs, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type, err = domain.ParseAnnotationType(typ)
	if err != nil {
		return nil, err
	}
	if err := a.UnmarshalData([]byte(data)); err != nil {
		return nil, fmt.Errorf("while decoding annotation %d: %w", a.ID, err)
	}
	if err := a.UnmarshalAttributes([]byte(attrs)); err != nil {
		return nil, fmt.Errorf("while decoding annotation %d: %w", a.ID, err)
	}
	return &a, nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// Verify that AnnotationRepository implements domain.AnnotationRepository
var _ domain.AnnotationRepository = (*AnnotationRepository)(nil)
