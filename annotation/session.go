package annotation

import (
	"context"
	"fmt"
	"log"

	"github.com/lewtec/demarca/internal/canvas"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/repository"
)

// Session drives the canvas machine for one project: it loads images into
// the machine and persists the effects the machine emits.
type Session struct {
	store   *repository.Store
	project *domain.Project
	machine *canvas.Machine
	images  *ImageCache
	view    geometry.Size

	index   int
	current *domain.Image
}

func NewSession(store *repository.Store, project *domain.Project, cfg canvas.Config, view geometry.Size) *Session {
	m := canvas.New(cfg)
	m.SetClasses(project.Classes)
	return &Session{
		store:   store,
		project: project,
		machine: m,
		images:  NewImageCache(),
		view:    view,
		index:   -1,
	}
}

func (s *Session) Machine() *canvas.Machine { return s.machine }
func (s *Session) Current() *domain.Image  { return s.current }
func (s *Session) Index() int               { return s.index }

func (s *Session) listImages(ctx context.Context) ([]*domain.Image, error) {
	return s.images.Load(ctx, func(ctx context.Context) ([]*domain.Image, error) {
		return s.store.ListImages(ctx, s.project.ID)
	})
}

// Open loads the image at index of the project image list
func (s *Session) Open(ctx context.Context, index int) error {
	images, err := s.listImages(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(images) {
		return fmt.Errorf("image index %d of %d: %w", index, len(images), domain.ErrNotFound)
	}
	img := images[index]
	anns, err := s.store.ListAnnotations(ctx, img.ID)
	if err != nil {
		return err
	}
	s.index = index
	s.current = img
	s.machine.Load(geometry.Size{Width: float64(img.Width), Height: float64(img.Height)}, s.view, anns)
	log.Printf("Session: opened %s (%d/%d) with %d annotations", img.Filename, index+1, len(images), len(anns))
	return nil
}

// Refresh reloads the image list, e.g. after an import
func (s *Session) Refresh() {
	s.images.Invalidate()
}

// Handle feeds ev to the machine and persists its effects. The effects are
// returned for the caller to render.
func (s *Session) Handle(ctx context.Context, ev canvas.Event) ([]canvas.Effect, error) {
	_, effects := s.machine.Handle(ev)
	for _, eff := range effects {
		if err := s.apply(ctx, eff); err != nil {
			return effects, err
		}
	}
	return effects, nil
}

func (s *Session) apply(ctx context.Context, eff canvas.Effect) error {
	switch eff.Kind {
	case canvas.CreateAnnotation:
		if s.current == nil {
			return nil
		}
		a := eff.Annotation
		a.ImageID = s.current.ID
		a.ProjectID = s.project.ID
		created, err := s.store.CreateAnnotation(ctx, a)
		if err != nil {
			return fmt.Errorf("while saving new annotation: %w", err)
		}
		s.machine.SetAnnotationID(eff.Index, created.ID)
	case canvas.UpdateAnnotation:
		if eff.Annotation.ID == 0 {
			return nil
		}
		if err := s.store.UpdateAnnotation(ctx, eff.Annotation); err != nil {
			return fmt.Errorf("while saving annotation %d: %w", eff.Annotation.ID, err)
		}
	case canvas.DeleteAnnotation:
		if eff.Annotation.ID == 0 {
			return nil
		}
		if err := s.store.DeleteAnnotation(ctx, eff.Annotation.ID); err != nil {
			return fmt.Errorf("while deleting annotation %d: %w", eff.Annotation.ID, err)
		}
	case canvas.NavigateImage:
		images, err := s.listImages(ctx)
		if err != nil {
			return err
		}
		next := s.index + eff.Index
		if next < 0 || next >= len(images) {
			return nil
		}
		return s.Open(ctx, next)
	}
	return nil
}
