package annotation

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/go-git/go-billy/v6"

	"github.com/lewtec/demarca/internal/codec"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/repository"
)

// Detection is one object reported by a detector, in image pixels. ClassName
// may be empty when the model only reports indices.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        geometry.Rect
}

// Detector runs model inference on one image
type Detector interface {
	Detect(ctx context.Context, img *domain.Image, r io.Reader) ([]Detection, error)
}

type AutoLabelOptions struct {
	MinConfidence float64
	OnlyUnlabeled bool
	Overwrite     bool
	// ClassMapping maps detector class ids to project class ids
	ClassMapping map[int]int
}

type AutoLabelResult struct {
	Processed int
	Labeled   int
	Skipped   int
	Messages  []string
}

// AutoLabeler writes detector output as bbox annotations
type AutoLabeler struct {
	fs       billy.Filesystem
	store    *repository.Store
	project  *domain.Project
	detector Detector

	// Progress, when set, is called after each image
	Progress func(processed, total, labeled int)
}

func NewAutoLabeler(fs billy.Filesystem, store *repository.Store, project *domain.Project, detector Detector) *AutoLabeler {
	return &AutoLabeler{fs: fs, store: store, project: project, detector: detector}
}

// Run labels the project images one at a time. Cancellation is checked
// between images.
func (l *AutoLabeler) Run(ctx context.Context, opts AutoLabelOptions) (AutoLabelResult, error) {
	var res AutoLabelResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	project, err := l.store.Projects.Get(ctx, l.project.ID)
	if err != nil {
		return res, err
	}
	if project == nil {
		return res, fmt.Errorf("project %d: %w", l.project.ID, domain.ErrNotFound)
	}
	images, err := l.store.ListImages(ctx, project.ID)
	if err != nil {
		return res, err
	}
	if opts.OnlyUnlabeled {
		pending := images[:0:0]
		for _, img := range images {
			if img.Status == domain.StatusPending {
				pending = append(pending, img)
			}
		}
		images = pending
	}

	table := codec.NewClassTable(project.Classes)
	persisted := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			log.Printf("AutoLabeler: cancelled after %d images", res.Processed)
			return res, err
		}
		anns, err := l.detect(ctx, img, project, table, opts)
		if err == nil && len(table.Added()) > persisted {
			if _, err := l.store.AppendClasses(ctx, project.ID, table.Added()[persisted:]); err != nil {
				return res, err
			}
			persisted = len(table.Added())
		}
		res.Processed++
		switch {
		case err != nil:
			res.Skipped++
			res.Messages = append(res.Messages, fmt.Sprintf("%s: %v", img.Filename, err))
		case len(anns) == 0:
		default:
			written, err := l.store.ReplaceImageAnnotations(ctx, img.ID, anns, opts.Overwrite)
			if err != nil {
				res.Skipped++
				res.Messages = append(res.Messages, fmt.Sprintf("%s: %v", img.Filename, err))
			} else if !written {
				res.Skipped++
				res.Messages = append(res.Messages, fmt.Sprintf("%s: already annotated", img.Filename))
			} else {
				res.Labeled++
			}
		}
		if l.Progress != nil {
			l.Progress(res.Processed, len(images), res.Labeled)
		}
	}
	log.Printf("AutoLabeler: %d processed, %d labeled, %d skipped", res.Processed, res.Labeled, res.Skipped)
	return res, nil
}

func (l *AutoLabeler) detect(ctx context.Context, img *domain.Image, project *domain.Project, table *codec.ClassTable, opts AutoLabelOptions) ([]*domain.Annotation, error) {
	f, err := l.fs.Open(img.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %v: %w", img.StoragePath, err, domain.ErrIOFailure)
	}
	defer f.Close()
	detections, err := l.detector.Detect(ctx, img, f)
	if err != nil {
		return nil, fmt.Errorf("while running detector: %w", err)
	}

	var anns []*domain.Annotation
	for _, d := range detections {
		if d.Confidence < opts.MinConfidence {
			continue
		}
		box := d.Box.ClampTo(float64(img.Width), float64(img.Height))
		if box.Width <= 0 || box.Height <= 0 {
			continue
		}
		classID := resolveDetection(d, project, table, opts.ClassMapping)
		conf := d.Confidence
		anns = append(anns, &domain.Annotation{
			ProjectID:  project.ID,
			ClassID:    classID,
			ClassName:  table.Name(classID),
			Type:       domain.TypeBBox,
			Geometry:   domain.Geometry{BBox: box},
			Confidence: &conf,
		})
	}
	return anns, nil
}

// resolveDetection turns a detector class into a project class id. A mapped
// id wins; otherwise the detector name (or the project name of the index,
// class_<n> when unknown) goes through the resolver.
func resolveDetection(d Detection, project *domain.Project, table *codec.ClassTable, mapping map[int]int) int {
	if id, ok := mapping[d.ClassID]; ok {
		if _, known := table.Classes().ByID(id); known {
			return id
		}
	}
	name := d.ClassName
	if name == "" {
		name = project.Classes.NameOf(d.ClassID)
	}
	return table.Resolve(name)
}
