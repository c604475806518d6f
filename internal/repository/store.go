package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/lewtec/demarca/internal/domain"
)

// Store bundles the repositories over one database and runs the multi-step
// mutations that must be atomic.
type Store struct {
	db          *sql.DB
	Projects    *ProjectRepository
	Images      *ImageRepository
	Annotations *AnnotationRepository
}

// Tx exposes the repositories bound to a running transaction
type Tx struct {
	Projects    *ProjectRepository
	Images      *ImageRepository
	Annotations *AnnotationRepository
}

// NewStore creates a Store over db
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Projects:    NewProjectRepository(db),
		Images:      NewImageRepository(db),
		Annotations: NewAnnotationRepository(db),
	}
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// fn must only use the repositories of the Tx it receives.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("while starting transaction: %w", err)
	}
	defer tx.Rollback()

	err = fn(&Tx{
		Projects:    NewProjectRepositoryWithTx(tx),
		Images:      NewImageRepositoryWithTx(tx),
		Annotations: NewAnnotationRepositoryWithTx(tx),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("while committing transaction: %w", err)
	}
	return nil
}

// CreateAnnotation inserts an annotation and updates the image status atomically
func (s *Store) CreateAnnotation(ctx context.Context, a *domain.Annotation) (*domain.Annotation, error) {
	var created *domain.Annotation
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := checkClass(ctx, tx, a.ProjectID, a.ClassID); err != nil {
			return err
		}
		var err error
		created, err = tx.Annotations.Create(ctx, a)
		return err
	})
	return created, err
}

// UpdateAnnotation rewrites an existing annotation. The class must belong to
// the annotation's project.
func (s *Store) UpdateAnnotation(ctx context.Context, a *domain.Annotation) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		existing, err := tx.Annotations.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("annotation %d: %w", a.ID, domain.ErrNotFound)
		}
		if err := checkClass(ctx, tx, existing.ProjectID, a.ClassID); err != nil {
			return err
		}
		return tx.Annotations.Update(ctx, a)
	})
}

// DeleteAnnotation removes an annotation and updates the image status atomically
func (s *Store) DeleteAnnotation(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.Annotations.Delete(ctx, id)
	})
}

// ListAnnotations lists the annotations of an image
func (s *Store) ListAnnotations(ctx context.Context, imageID int64) ([]*domain.Annotation, error) {
	return s.Annotations.ListForImage(ctx, imageID)
}

// ListImages lists the images of a project in import order
func (s *Store) ListImages(ctx context.Context, projectID int64) ([]*domain.Image, error) {
	return s.Images.List(ctx, projectID)
}

// ReplaceImageAnnotations applies the import overwrite policy to one image.
// When the image already has annotations and overwrite is false nothing is
// written and false is returned. Otherwise the existing annotations are
// deleted and anns inserted in the same transaction.
func (s *Store) ReplaceImageAnnotations(ctx context.Context, imageID int64, anns []*domain.Annotation, overwrite bool) (bool, error) {
	written := false
	err := s.WithTx(ctx, func(tx *Tx) error {
		existing, err := tx.Annotations.CountForImage(ctx, imageID)
		if err != nil {
			return err
		}
		if existing > 0 {
			if !overwrite {
				return nil
			}
			if _, err := tx.Annotations.DeleteForImage(ctx, imageID); err != nil {
				return fmt.Errorf("while clearing annotations of image %d: %w", imageID, err)
			}
		}
		for _, a := range anns {
			a.ImageID = imageID
			if _, err := tx.Annotations.Create(ctx, a); err != nil {
				return err
			}
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// DeleteAnnotations removes annotations of one image atomically
func (s *Store) DeleteAnnotations(ctx context.Context, imageID int64, ids []int64) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.Annotations.DeleteByIDs(ctx, imageID, ids)
		return err
	})
	return n, err
}

// RelabelAnnotations moves annotations of one image to another class
func (s *Store) RelabelAnnotations(ctx context.Context, imageID int64, ids []int64, classID int, className string) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		img, err := tx.Images.Get(ctx, imageID)
		if err != nil {
			return err
		}
		if img == nil {
			return fmt.Errorf("image %d: %w", imageID, domain.ErrNotFound)
		}
		if err := checkClass(ctx, tx, img.ProjectID, classID); err != nil {
			return err
		}
		n, err = tx.Annotations.Relabel(ctx, imageID, ids, classID, className)
		return err
	})
	return n, err
}

// DeleteImage removes an image record with its annotations
func (s *Store) DeleteImage(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.Images.Delete(ctx, id)
	})
}

// AddClass appends a class to a project. An existing class with the same name
// is returned unchanged.
func (s *Store) AddClass(ctx context.Context, projectID int64, name string, color domain.Color) (domain.ClassDef, error) {
	var def domain.ClassDef
	err := s.WithTx(ctx, func(tx *Tx) error {
		p, err := getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if existing, ok := p.Classes.ByName(name); ok {
			def = existing
			return nil
		}
		var classes domain.ClassList
		classes, def = p.Classes.Add(name, color)
		return tx.Projects.UpdateClasses(ctx, projectID, classes)
	})
	return def, err
}

// AppendClasses persists classes created while resolving imported names. A
// definition whose name already exists must keep its id.
func (s *Store) AppendClasses(ctx context.Context, projectID int64, defs []domain.ClassDef) (domain.ClassList, error) {
	var classes domain.ClassList
	err := s.WithTx(ctx, func(tx *Tx) error {
		p, err := getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		classes = p.Classes
		for _, def := range defs {
			if existing, ok := classes.ByName(def.Name); ok {
				if existing.ID != def.ID {
					return fmt.Errorf("class %q has id %d, not %d: %w", def.Name, existing.ID, def.ID, domain.ErrInvariantViolation)
				}
				continue
			}
			if _, taken := classes.ByID(def.ID); taken {
				return fmt.Errorf("class id %d already taken: %w", def.ID, domain.ErrInvariantViolation)
			}
			classes = append(classes, def)
		}
		return tx.Projects.UpdateClasses(ctx, projectID, classes)
	})
	return classes, err
}

// DeleteClass removes a class, deletes its annotations, renumbers the
// remaining classes 0..n-1 and remaps every annotation to the new ids, all in
// one transaction. Any annotation left pointing outside the new class range
// rolls the whole operation back.
func (s *Store) DeleteClass(ctx context.Context, projectID int64, classID int) (domain.ClassList, int64, error) {
	var (
		classes domain.ClassList
		deleted int64
	)
	err := s.WithTx(ctx, func(tx *Tx) error {
		p, err := getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		var remap map[int]int
		classes, remap, err = p.Classes.Remove(classID)
		if err != nil {
			return err
		}

		deleted, err = tx.Annotations.DeleteByClass(ctx, projectID, classID)
		if err != nil {
			return fmt.Errorf("while deleting annotations of class %d: %w", classID, err)
		}

		olds := make([]int, 0, len(remap))
		for old := range remap {
			olds = append(olds, old)
		}
		// ids only ever move down, so ascending order never collides
		sort.Ints(olds)
		for _, old := range olds {
			next := remap[old]
			if err := tx.Annotations.RemapClass(ctx, projectID, old, next, classes[next].Name); err != nil {
				return fmt.Errorf("while remapping class %d to %d: %w", old, next, err)
			}
		}

		stale, err := tx.Annotations.CountOutside(ctx, projectID, len(classes))
		if err != nil {
			return err
		}
		if stale > 0 {
			return fmt.Errorf("%d annotations reference unknown classes after deleting class %d: %w", stale, classID, domain.ErrInvariantViolation)
		}

		if err := tx.Images.RefreshProjectStatuses(ctx, projectID); err != nil {
			return fmt.Errorf("while refreshing image statuses: %w", err)
		}
		return tx.Projects.UpdateClasses(ctx, projectID, classes)
	})
	if err != nil {
		return nil, 0, err
	}
	log.Printf("Store: deleted class %d from project %d (%d annotations removed)", classID, projectID, deleted)
	return classes, deleted, nil
}

// checkClass fails with ErrNotFound unless classID is one of the project's classes
func checkClass(ctx context.Context, tx *Tx, projectID int64, classID int) error {
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if _, ok := p.Classes.ByID(classID); !ok {
		return fmt.Errorf("class %d of project %d: %w", classID, projectID, domain.ErrNotFound)
	}
	return nil
}

func getProject(ctx context.Context, tx *Tx, id int64) (*domain.Project, error) {
	p, err := tx.Projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}
