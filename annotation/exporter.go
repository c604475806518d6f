package annotation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"gopkg.in/yaml.v3"

	"github.com/lewtec/demarca/internal/codec"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/repository"
)

// ExportResult summarizes an export
type ExportResult struct {
	Exported int
	Skipped  int
	Messages []string
}

func (r *ExportResult) skip(format string, args ...any) {
	r.Skipped++
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Exporter writes the annotations of a project in the supported formats
type Exporter struct {
	fs      billy.Filesystem
	store   *repository.Store
	project *domain.Project
	dataset ConfigDataset
}

func NewExporter(fs billy.Filesystem, store *repository.Store, project *domain.Project) *Exporter {
	return &Exporter{
		fs:      fs,
		store:   store,
		project: project,
		dataset: ConfigDataset{Train: 80, Val: 10, Test: 10, Seed: 42},
	}
}

// WithSplit sets the dataset split used by ExportDataset
func (e *Exporter) WithSplit(split ConfigDataset) *Exporter {
	e.dataset = split
	return e
}

func (e *Exporter) load(ctx context.Context) ([]codec.ExportImage, error) {
	project, err := e.store.Projects.Get(ctx, e.project.ID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %d: %w", e.project.ID, domain.ErrNotFound)
	}
	e.project = project

	images, err := e.store.ListImages(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	out := make([]codec.ExportImage, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		anns, err := e.store.ListAnnotations(ctx, img.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, codec.ExportImage{Image: img, Annotations: anns})
	}
	return out, nil
}

func (e *Exporter) writeFile(name string, encode func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	if err := util.WriteFile(e.fs, name, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("while writing %s: %v: %w", name, err, domain.ErrIOFailure)
	}
	return nil
}

func (e *Exporter) mkdir(dir string) error {
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("while creating %s: %v: %w", dir, err, domain.ErrIOFailure)
	}
	return nil
}

// ExportYOLO writes classes.txt and one label file per annotated image
func (e *Exporter) ExportYOLO(ctx context.Context, dir string) (ExportResult, error) {
	var res ExportResult
	items, err := e.load(ctx)
	if err != nil {
		return res, err
	}
	if err := e.mkdir(dir); err != nil {
		return res, err
	}
	if err := e.writeFile(e.fs.Join(dir, "classes.txt"), func(w io.Writer) error {
		return codec.WriteClassNames(w, e.project.Classes)
	}); err != nil {
		return res, err
	}
	for _, item := range items {
		if len(item.Annotations) == 0 {
			continue
		}
		e.writeLabels(&res, e.fs.Join(dir, stem(item.Image.Filename)+".txt"), item)
	}
	log.Printf("Exporter: yolo %s: %d exported, %d skipped", dir, res.Exported, res.Skipped)
	return res, nil
}

func (e *Exporter) writeLabels(res *ExportResult, name string, item codec.ExportImage) {
	err := e.writeFile(name, func(w io.Writer) error {
		return codec.EncodeYOLO(w, item.Annotations, float64(item.Image.Width), float64(item.Image.Height))
	})
	if err != nil {
		res.skip("%s: %v", item.Image.Filename, err)
		return
	}
	res.Exported++
}

// ExportCOCO writes every image of the project and its annotations to file
func (e *Exporter) ExportCOCO(ctx context.Context, file string) (ExportResult, error) {
	var res ExportResult
	items, err := e.load(ctx)
	if err != nil {
		return res, err
	}
	if err := e.mkdir(path.Dir(file)); err != nil {
		return res, err
	}
	set := codec.ExportSet{
		Info: map[string]any{
			"description":  e.project.Name,
			"version":      "1.0",
			"year":         time.Now().Year(),
			"date_created": time.Now().Format(time.RFC3339),
		},
		Classes: e.project.Classes,
		Images:  items,
	}
	for _, item := range items {
		for _, a := range item.Annotations {
			if a.Type == domain.TypeClassify {
				res.skip("%s: classify annotation %d has no coco geometry", item.Image.Filename, a.ID)
			}
		}
	}
	if err := e.writeFile(file, func(w io.Writer) error { return codec.EncodeCOCO(w, set) }); err != nil {
		return res, err
	}
	res.Exported = len(items)
	log.Printf("Exporter: coco %s: %d images", file, res.Exported)
	return res, nil
}

// ExportVOC writes one document per annotated image
func (e *Exporter) ExportVOC(ctx context.Context, dir string) (ExportResult, error) {
	var res ExportResult
	items, err := e.load(ctx)
	if err != nil {
		return res, err
	}
	if err := e.mkdir(dir); err != nil {
		return res, err
	}
	for _, item := range items {
		if len(item.Annotations) == 0 {
			continue
		}
		name := e.fs.Join(dir, stem(item.Image.Filename)+".xml")
		err := e.writeFile(name, func(w io.Writer) error {
			return codec.EncodeVOC(w, item.Image, item.Annotations)
		})
		if err != nil {
			res.skip("%s: %v", item.Image.Filename, err)
			continue
		}
		res.Exported++
	}
	log.Printf("Exporter: voc %s: %d exported, %d skipped", dir, res.Exported, res.Skipped)
	return res, nil
}

type datasetYAML struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

var datasetSplits = []string{"train", "val", "test"}

// splitSizes divides total images by percentage, keeping at least one image
// in train and val when there are enough images.
func splitSizes(total int, split ConfigDataset) (int, int, int) {
	if total < 3 {
		return total, 0, 0
	}
	train := max(1, total*split.Train/100)
	val := max(1, total*split.Val/100)
	if train+val > total {
		return total - 1, 1, 0
	}
	return train, val, total - train - val
}

// ExportDataset lays out a training dataset: images/<split>, labels/<split>,
// classes.txt and data.yaml. Images are shuffled with a fixed seed so the
// split is reproducible.
func (e *Exporter) ExportDataset(ctx context.Context, dir string) (ExportResult, error) {
	var res ExportResult
	items, err := e.load(ctx)
	if err != nil {
		return res, err
	}
	for _, split := range datasetSplits {
		if err := e.mkdir(e.fs.Join(dir, "images", split)); err != nil {
			return res, err
		}
		if err := e.mkdir(e.fs.Join(dir, "labels", split)); err != nil {
			return res, err
		}
	}

	rng := rand.New(rand.NewSource(e.dataset.Seed))
	rng.Shuffle(len(items), func(a, b int) { items[a], items[b] = items[b], items[a] })
	train, val, _ := splitSizes(len(items), e.dataset)
	for n, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		split := "test"
		switch {
		case n < train:
			split = "train"
		case n < train+val:
			split = "val"
		}
		dst := e.fs.Join(dir, "images", split, item.Image.Filename)
		if err := e.copyFile(item.Image.StoragePath, dst); err != nil {
			res.skip("%s: %v", item.Image.Filename, err)
			continue
		}
		if len(item.Annotations) == 0 {
			res.Exported++
			continue
		}
		e.writeLabels(&res, e.fs.Join(dir, "labels", split, stem(item.Image.Filename)+".txt"), item)
	}

	if err := e.writeFile(e.fs.Join(dir, "classes.txt"), func(w io.Writer) error {
		return codec.WriteClassNames(w, e.project.Classes)
	}); err != nil {
		return res, err
	}
	names := make([]string, 0, len(e.project.Classes))
	for id := 0; id < e.project.Classes.NextID(); id++ {
		names = append(names, e.project.Classes.NameOf(id))
	}
	data, err := yaml.Marshal(datasetYAML{
		Path:  dir,
		Train: "images/train",
		Val:   "images/val",
		Test:  "images/test",
		NC:    len(names),
		Names: names,
	})
	if err != nil {
		return res, fmt.Errorf("while encoding data.yaml: %w", err)
	}
	if err := util.WriteFile(e.fs, e.fs.Join(dir, "data.yaml"), data, 0644); err != nil {
		return res, fmt.Errorf("while writing data.yaml: %v: %w", err, domain.ErrIOFailure)
	}
	log.Printf("Exporter: dataset %s: %d exported, %d skipped", dir, res.Exported, res.Skipped)
	return res, nil
}

func (e *Exporter) copyFile(src, dst string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("while opening %s: %v: %w", src, err, domain.ErrIOFailure)
	}
	defer in.Close()
	out, err := e.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("while creating %s: %v: %w", dst, err, domain.ErrIOFailure)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("while copying %s: %v: %w", src, err, domain.ErrIOFailure)
	}
	return out.Close()
}
