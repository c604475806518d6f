// Package batch applies delete and relabel operations to the annotations
// covered by a set of image-space points, over a range of project images.
package batch

import (
	"context"
	"fmt"
	"log"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

// Store is the persistence the processor needs. Each write call must be
// atomic for its image.
type Store interface {
	ListImages(ctx context.Context, projectID int64) ([]*domain.Image, error)
	ListAnnotations(ctx context.Context, imageID int64) ([]*domain.Annotation, error)
	DeleteAnnotations(ctx context.Context, imageID int64, ids []int64) (int64, error)
	RelabelAnnotations(ctx context.Context, imageID int64, ids []int64, classID int, className string) (int64, error)
}

// Op is either Delete or Relabel
type Op interface {
	matches(classID int) bool
}

// Delete removes covered annotations whose class is in Classes
type Delete struct {
	Classes []int
}

func (d Delete) matches(classID int) bool {
	return containsInt(d.Classes, classID)
}

// Relabel moves covered annotations whose class is in Source to Target
type Relabel struct {
	Source     []int
	Target     int
	TargetName string
}

func (r Relabel) matches(classID int) bool {
	return classID != r.Target && containsInt(r.Source, classID)
}

// Request selects the images [Start, End] (inclusive, import order) of a
// project and the points that decide coverage.
type Request struct {
	ProjectID int64
	Points    []geometry.Point
	Start     int
	End       int
	Op        Op
}

// Result counts what a run did. Failed lists images whose write failed.
type Result struct {
	ImagesProcessed     int
	AnnotationsModified int64
	Failed              int
	Messages            []string
}

// Processor runs batch requests against a store
type Processor struct {
	store Store

	// Progress, when set, is called after each image with the number of
	// images done and the range size.
	Progress func(done, total int)
}

// NewProcessor creates a processor over store
func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// Run applies req. It is not atomic across images: when ctx is cancelled the
// images already processed stay modified and the partial result is returned
// with the context error.
func (p *Processor) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	if req.Op == nil {
		return res, fmt.Errorf("batch request without operation: %w", domain.ErrMalformedInput)
	}
	if len(req.Points) == 0 {
		return res, nil
	}

	images, err := p.store.ListImages(ctx, req.ProjectID)
	if err != nil {
		return res, fmt.Errorf("while listing images: %w", err)
	}
	start, end := clampRange(req.Start, req.End, len(images))
	if start > end {
		return res, nil
	}
	total := end - start + 1

	for i := start; i <= end; i++ {
		if err := ctx.Err(); err != nil {
			log.Printf("Batch: cancelled after %d of %d images", res.ImagesProcessed, total)
			return res, err
		}
		img := images[i]
		n, err := p.processImage(ctx, img, req)
		if err != nil {
			res.Failed++
			res.Messages = append(res.Messages, fmt.Sprintf("%s: %v", img.Filename, err))
			log.Printf("Batch: image %d (%s) failed: %v", img.ID, img.Filename, err)
		} else {
			res.AnnotationsModified += n
		}
		res.ImagesProcessed++
		if p.Progress != nil {
			p.Progress(res.ImagesProcessed, total)
		}
	}
	log.Printf("Batch: processed %d images, modified %d annotations, %d failed",
		res.ImagesProcessed, res.AnnotationsModified, res.Failed)
	return res, nil
}

func (p *Processor) processImage(ctx context.Context, img *domain.Image, req Request) (int64, error) {
	anns, err := p.store.ListAnnotations(ctx, img.ID)
	if err != nil {
		return 0, fmt.Errorf("while listing annotations: %w", err)
	}
	var ids []int64
	for _, a := range anns {
		if req.Op.matches(a.ClassID) && Covered(a, req.Points) {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	switch op := req.Op.(type) {
	case Delete:
		return p.store.DeleteAnnotations(ctx, img.ID, ids)
	case Relabel:
		return p.store.RelabelAnnotations(ctx, img.ID, ids, op.Target, op.TargetName)
	default:
		return 0, fmt.Errorf("unknown batch operation %T: %w", op, domain.ErrMalformedInput)
	}
}

// Covered reports whether any point lies inside the annotation geometry
func Covered(a *domain.Annotation, points []geometry.Point) bool {
	for _, p := range points {
		if a.Contains(p) {
			return true
		}
	}
	return false
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	return start, end
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
