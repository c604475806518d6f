package annotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"

	"github.com/lewtec/demarca/internal/batch"
	"github.com/lewtec/demarca/internal/codec"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/repository"
)

// App wires the configuration, the database and the filesystem together and
// hands out the per-project collaborators.
type App struct {
	Config *Config
	DB     *sql.DB
	Store  *repository.Store
	FS     billy.Filesystem
}

// NewApp opens the configured database and brings it up to date
func NewApp(cfg *Config, fs billy.Filesystem) (*App, error) {
	db, err := GetDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	return NewAppWithDB(cfg, fs, db), nil
}

// NewAppWithDB builds an App over an already migrated database
func NewAppWithDB(cfg *Config, fs billy.Filesystem, db *sql.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
		Store:  repository.NewStore(db),
		FS:     fs,
	}
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Project finds a project by name. An empty name falls back to the configured
// project, then to the only project in the database.
func (a *App) Project(ctx context.Context, name string) (*domain.Project, error) {
	name = stringOr(name, a.Config.Project)
	if name == "" {
		projects, err := a.Store.Projects.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(projects) != 1 {
			return nil, fmt.Errorf("%d projects and none selected: %w", len(projects), domain.ErrNotFound)
		}
		return projects[0], nil
	}
	p, err := a.Store.Projects.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

// CreateProject stores a new project whose files live under the configured
// storage directory.
func (a *App) CreateProject(ctx context.Context, name, description string, task domain.Task, unit domain.AngleUnit, classNames []string) (*domain.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is empty: %w", domain.ErrMalformedInput)
	}
	var classes domain.ClassList
	for _, n := range classNames {
		if _, ok := classes.ByName(n); ok {
			continue
		}
		classes, _ = classes.Add(n, codec.PaletteColor(classes.NextID()))
	}
	storage := a.FS.Join(a.Config.Storage, name)
	if err := a.FS.MkdirAll(storage, 0755); err != nil {
		return nil, fmt.Errorf("while creating %s: %v: %w", storage, err, domain.ErrIOFailure)
	}
	p, err := a.Store.Projects.Create(ctx, &domain.Project{
		Name:        name,
		Description: description,
		Task:        task,
		Classes:     classes,
		StoragePath: storage,
		AngleUnit:   unit,
	})
	if err != nil {
		return nil, fmt.Errorf("while creating project %q: %w", name, err)
	}
	log.Printf("App: created project %q (%s) with %d classes", p.Name, p.Task, len(p.Classes))
	return p, nil
}

func (a *App) ImageImporter(p *domain.Project) *ImageImporter {
	return NewImageImporter(a.FS, a.Store, p)
}

// Importer returns an annotation importer honoring the configured overwrite
// policy
func (a *App) Importer(p *domain.Project) *Importer {
	im := NewImporter(a.FS, a.Store, p)
	im.Overwrite = a.Config.Import.Overwrite
	return im
}

func (a *App) Exporter(p *domain.Project) *Exporter {
	return NewExporter(a.FS, a.Store, p).WithSplit(a.Config.Dataset)
}

func (a *App) Session(p *domain.Project, view geometry.Size) *Session {
	return NewSession(a.Store, p, a.Config.CanvasConfig(), view)
}

func (a *App) Batch() *batch.Processor {
	return batch.NewProcessor(a.Store)
}

func (a *App) AutoLabeler(p *domain.Project, detector Detector) *AutoLabeler {
	return NewAutoLabeler(a.FS, a.Store, p, detector)
}

// AutoLabelOptions returns the configured auto-label defaults
func (a *App) AutoLabelOptions() AutoLabelOptions {
	return AutoLabelOptions{
		MinConfidence: a.Config.AutoLabel.MinConfidence,
		OnlyUnlabeled: a.Config.AutoLabel.OnlyUnlabeled,
		Overwrite:     a.Config.Import.Overwrite,
	}
}

// Thumbnails generates the thumbnails of every image of p
func (a *App) Thumbnails(ctx context.Context, p *domain.Project, progress func(done, total int)) (ThumbnailResult, error) {
	images, err := a.Store.ListImages(ctx, p.ID)
	if err != nil {
		return ThumbnailResult{}, err
	}
	return GenerateThumbnails(ctx, a.FS, p, images, a.Config.Thumbnails.Size, a.Config.Thumbnails.Jobs, progress)
}

// RemoveImage deletes an image with its annotations, then its stored file and
// thumbnail. Files that are already gone are ignored.
func (a *App) RemoveImage(ctx context.Context, p *domain.Project, img *domain.Image) error {
	if err := a.Store.DeleteImage(ctx, img.ID); err != nil {
		return err
	}
	for _, f := range []string{img.StoragePath, ThumbnailPath(a.FS, p, img)} {
		if err := a.FS.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("App: while removing %s: %v", f, err)
		}
	}
	log.Printf("App: removed image %d (%s)", img.ID, img.Filename)
	return nil
}

// DeleteProject removes a project with its images and annotations, then its
// storage directory
func (a *App) DeleteProject(ctx context.Context, p *domain.Project) error {
	err := a.Store.WithTx(ctx, func(tx *repository.Tx) error {
		return tx.Projects.Delete(ctx, p.ID)
	})
	if err != nil {
		return fmt.Errorf("while deleting project %q: %w", p.Name, err)
	}
	if p.StoragePath != "" {
		if err := util.RemoveAll(a.FS, p.StoragePath); err != nil {
			log.Printf("App: while removing %s: %v", p.StoragePath, err)
		}
	}
	log.Printf("App: deleted project %q", p.Name)
	return nil
}

// VerifyImage checks that the stored file of img still has its recorded hash
func (a *App) VerifyImage(img *domain.Image) error {
	sum, err := HashFile(a.FS, img.StoragePath)
	if err != nil {
		return fmt.Errorf("while hashing %s: %v: %w", img.StoragePath, err, domain.ErrIOFailure)
	}
	if sum != img.SHA256 {
		return fmt.Errorf("%s has hash %s, expected %s: %w", img.Filename, sum, img.SHA256, domain.ErrInvariantViolation)
	}
	return nil
}
