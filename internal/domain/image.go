package domain

import (
	"context"
	"time"
)

// ImageStatus is derived from the annotation set of an image
type ImageStatus string

const (
	StatusPending   ImageStatus = "pending"
	StatusAnnotated ImageStatus = "annotated"
)

// Image represents an image imported into a project
type Image struct {
	ID           int64
	ProjectID    int64
	Filename     string
	OriginalPath string
	StoragePath  string
	SHA256       string
	Width        int
	Height       int
	Size         int64
	Format       string
	Status       ImageStatus
	AnnotatedAt  *time.Time
	CreatedAt    time.Time
}

// ImageRepository defines the interface for image storage operations
type ImageRepository interface {
	// Create creates a new image record
	Create(ctx context.Context, img *Image) (*Image, error)

	// Get retrieves an image by ID
	Get(ctx context.Context, id int64) (*Image, error)

	// GetBySHA256 retrieves an image of a project by its content hash
	GetBySHA256(ctx context.Context, projectID int64, sha256 string) (*Image, error)

	// GetByFilename retrieves an image of a project by its stored filename
	GetByFilename(ctx context.Context, projectID int64, filename string) (*Image, error)

	// GetByOriginalPath retrieves an image of a project by the path it was imported from
	GetByOriginalPath(ctx context.Context, projectID int64, path string) (*Image, error)

	// List retrieves the images of a project in import order
	List(ctx context.Context, projectID int64) ([]*Image, error)

	// Count returns the number of images of a project
	Count(ctx context.Context, projectID int64) (int64, error)

	// CountByStatus returns the number of images of a project with a status
	CountByStatus(ctx context.Context, projectID int64, status ImageStatus) (int64, error)

	// RefreshStatus re-derives the status from the current annotation set
	RefreshStatus(ctx context.Context, id int64) error

	// Delete removes an image, cascading to its annotations
	Delete(ctx context.Context, id int64) error
}
