package annotation

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"

	"github.com/lewtec/demarca/internal/codec"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/repository"
)

// Result summarizes an import. Imported and Skipped count images (or label
// files that never reached an image); Annotations and Dropped count single
// annotations written or rejected before reaching an image. Skipped items are
// described in Messages.
type Result struct {
	Imported    int
	Skipped     int
	Annotations int
	Dropped     int
	Messages    []string
}

func (r *Result) skip(format string, args ...any) {
	r.Skipped++
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Importer reads annotation files into a project. Label files are matched to
// images already in the project; with Chain, an unmatched label file pulls in
// the image file next to it first.
type Importer struct {
	fs      billy.Filesystem
	store   *repository.Store
	project *domain.Project
	images  *ImageImporter

	// Overwrite replaces the annotations of already annotated images
	Overwrite bool

	classes   *codec.ClassTable
	persisted int
	index     *imageIndex
}

func NewImporter(fs billy.Filesystem, store *repository.Store, project *domain.Project) *Importer {
	return &Importer{fs: fs, store: store, project: project}
}

// Chain makes the importer import missing images through images
func (i *Importer) Chain(images *ImageImporter) *Importer {
	i.images = images
	return i
}

type imageIndex struct {
	byName map[string]*domain.Image
	byStem map[string]*domain.Image
	byPath map[string]*domain.Image
}

func stem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func (x *imageIndex) add(img *domain.Image) {
	if _, ok := x.byName[img.Filename]; !ok {
		x.byName[img.Filename] = img
	}
	if _, ok := x.byStem[stem(img.Filename)]; !ok {
		x.byStem[stem(img.Filename)] = img
	}
	if img.OriginalPath != "" {
		x.byPath[path.Clean(img.OriginalPath)] = img
	}
}

func (i *Importer) begin(ctx context.Context) error {
	project, err := i.store.Projects.Get(ctx, i.project.ID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project %d: %w", i.project.ID, domain.ErrNotFound)
	}
	i.project = project
	i.classes = codec.NewClassTable(project.Classes)
	i.persisted = 0

	images, err := i.store.ListImages(ctx, project.ID)
	if err != nil {
		return err
	}
	i.index = &imageIndex{
		byName: map[string]*domain.Image{},
		byStem: map[string]*domain.Image{},
		byPath: map[string]*domain.Image{},
	}
	for _, img := range images {
		i.index.add(img)
	}
	return nil
}

// lookup finds the image a label refers to. sibling is the image file the
// chained importer may pull in when nothing matches.
func (i *Importer) lookup(ctx context.Context, filename string, byStem bool, sibling func() string) (*domain.Image, error) {
	if img, ok := i.index.byPath[path.Clean(filename)]; ok {
		return img, nil
	}
	if img, ok := i.index.byName[path.Base(filename)]; ok {
		return img, nil
	}
	if byStem {
		if img, ok := i.index.byStem[stem(filename)]; ok {
			return img, nil
		}
	}
	if i.images == nil {
		return nil, fmt.Errorf("no image matches %s: %w", filename, domain.ErrNotFound)
	}
	src := sibling()
	if src == "" {
		return nil, fmt.Errorf("no image file found for %s: %w", filename, domain.ErrNotFound)
	}
	img, _, err := i.images.ImportFile(ctx, src)
	if err != nil {
		return nil, err
	}
	i.index.add(img)
	return img, nil
}

// persistClasses stores the classes created by the resolver so far
func (i *Importer) persistClasses(ctx context.Context) error {
	added := i.classes.Added()
	if len(added) == i.persisted {
		return nil
	}
	classes, err := i.store.AppendClasses(ctx, i.project.ID, added[i.persisted:])
	if err != nil {
		return err
	}
	for _, c := range added[i.persisted:] {
		log.Printf("Importer: created class %d %q", c.ID, c.Name)
	}
	i.persisted = len(added)
	i.project.Classes = classes
	return nil
}

func (i *Importer) write(ctx context.Context, res *Result, img *domain.Image, objects []codec.Object, name func(codec.Object) string) error {
	anns := make([]*domain.Annotation, 0, len(objects))
	for _, o := range objects {
		n := name(o)
		a := o.Annotation(i.classes.Resolve(n), n)
		a.ProjectID = i.project.ID
		anns = append(anns, a)
	}
	if err := i.persistClasses(ctx); err != nil {
		return err
	}
	written, err := i.store.ReplaceImageAnnotations(ctx, img.ID, anns, i.Overwrite)
	if err != nil {
		res.skip("%s: %v", img.Filename, err)
		return nil
	}
	if !written {
		res.skip("%s: already annotated", img.Filename)
		return nil
	}
	res.Imported++
	res.Annotations += len(anns)
	return nil
}

func (i *Importer) siblingImage(dir, name string) func() string {
	return func() string {
		for _, ext := range SupportedExtensions {
			for _, e := range []string{ext, strings.ToUpper(ext)} {
				candidate := i.fs.Join(dir, name+e)
				if _, err := i.fs.Stat(candidate); err == nil {
					return candidate
				}
			}
		}
		return ""
	}
}

func (i *Importer) glob(dir, pattern string) ([]string, error) {
	matches, err := util.Glob(i.fs, i.fs.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("while listing %s: %v: %w", dir, err, domain.ErrIOFailure)
	}
	sort.Strings(matches)
	return matches, nil
}

// ImportYOLO reads one label file per image from dir, interpreted by the
// project task. classes.txt, when present, names the class indices.
func (i *Importer) ImportYOLO(ctx context.Context, dir string) (Result, error) {
	var res Result
	if err := i.begin(ctx); err != nil {
		return res, err
	}

	var names []string
	if f, err := i.fs.Open(i.fs.Join(dir, "classes.txt")); err == nil {
		names, err = codec.ReadClassNames(f)
		f.Close()
		if err != nil {
			return res, err
		}
	}
	className := func(o codec.Object) string {
		if o.ClassIndex < len(names) {
			return names[o.ClassIndex]
		}
		return i.project.Classes.NameOf(o.ClassIndex)
	}

	files, err := i.glob(dir, "*.txt")
	if err != nil {
		return res, err
	}
	for _, file := range files {
		if path.Base(file) == "classes.txt" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		img, err := i.lookup(ctx, file, true, i.siblingImage(dir, stem(file)))
		if err != nil {
			res.skip("%s: %v", file, err)
			continue
		}
		data, err := util.ReadFile(i.fs, file)
		if err != nil {
			res.skip("%s: %v: %v", file, err, domain.ErrIOFailure)
			continue
		}
		objects, skipped, err := codec.DecodeYOLO(bytes.NewReader(data), i.project.Task, float64(img.Width), float64(img.Height))
		if err != nil {
			res.skip("%s: %v", file, err)
			continue
		}
		if skipped > 0 {
			res.Dropped += skipped
			res.Messages = append(res.Messages, fmt.Sprintf("%s: %d malformed lines skipped", file, skipped))
		}
		if err := i.write(ctx, &res, img, objects, className); err != nil {
			return res, err
		}
	}
	log.Printf("Importer: yolo %s: %d imported, %d skipped, %d annotations, %d dropped", dir, res.Imported, res.Skipped, res.Annotations, res.Dropped)
	return res, nil
}

// ImportCOCO reads a COCO instances file
func (i *Importer) ImportCOCO(ctx context.Context, file string) (Result, error) {
	var res Result
	if err := i.begin(ctx); err != nil {
		return res, err
	}
	f, err := i.fs.Open(file)
	if err != nil {
		return res, fmt.Errorf("while opening %s: %v: %w", file, err, domain.ErrIOFailure)
	}
	doc, err := codec.DecodeCOCO(f)
	f.Close()
	if err != nil {
		return res, err
	}

	groups, dangling := doc.Objects()
	res.Dropped += dangling
	if dangling > 0 {
		res.Messages = append(res.Messages, fmt.Sprintf("%s: %d annotations reference missing images or categories", file, dangling))
	}

	dir := path.Dir(file)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		img, err := i.lookup(ctx, g.FileName, false, func() string {
			candidate := i.fs.Join(dir, g.FileName)
			if _, err := i.fs.Stat(candidate); err != nil {
				return ""
			}
			return candidate
		})
		if err != nil {
			res.skip("%s: %v", g.FileName, err)
			continue
		}
		if err := i.write(ctx, &res, img, g.Objects, func(o codec.Object) string { return o.ClassName }); err != nil {
			return res, err
		}
	}
	log.Printf("Importer: coco %s: %d imported, %d skipped, %d annotations, %d dropped", file, res.Imported, res.Skipped, res.Annotations, res.Dropped)
	return res, nil
}

// ImportVOC reads one VOC document per image from dir
func (i *Importer) ImportVOC(ctx context.Context, dir string) (Result, error) {
	var res Result
	if err := i.begin(ctx); err != nil {
		return res, err
	}
	files, err := i.glob(dir, "*.xml")
	if err != nil {
		return res, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := util.ReadFile(i.fs, file)
		if err != nil {
			res.skip("%s: %v: %v", file, err, domain.ErrIOFailure)
			continue
		}
		doc, objects, skipped, err := codec.DecodeVOC(bytes.NewReader(data))
		if err != nil {
			res.skip("%s: %v", file, err)
			continue
		}
		if skipped > 0 {
			res.Dropped += skipped
			res.Messages = append(res.Messages, fmt.Sprintf("%s: %d objects without name or bndbox skipped", file, skipped))
		}
		target := doc.Filename
		if target == "" {
			target = stem(file)
		}
		img, err := i.lookup(ctx, target, true, func() string {
			if doc.Filename != "" {
				candidate := i.fs.Join(dir, path.Base(doc.Filename))
				if _, err := i.fs.Stat(candidate); err == nil {
					return candidate
				}
			}
			return i.siblingImage(dir, stem(file))()
		})
		if err != nil {
			res.skip("%s: %v", file, err)
			continue
		}
		if err := i.write(ctx, &res, img, objects, func(o codec.Object) string { return o.ClassName }); err != nil {
			return res, err
		}
	}
	log.Printf("Importer: voc %s: %d imported, %d skipped, %d annotations, %d dropped", dir, res.Imported, res.Skipped, res.Annotations, res.Dropped)
	return res, nil
}
