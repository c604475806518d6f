package annotation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/repository"
)

// SupportedExtensions lists the image file extensions that can be imported
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

func IsSupportedImage(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// ProbeImage reads the image header only
func ProbeImage(r io.Reader) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("while probing image: %v: %w", err, domain.ErrMalformedInput)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// DecodeImage decodes a stored image, applying its EXIF orientation
func DecodeImage(fs billy.Filesystem, filepath string) (image.Image, error) {
	f, err := fs.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %v: %w", filepath, err, domain.ErrIOFailure)
	}
	defer f.Close()
	m, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("while decoding %s: %v: %w", filepath, err, domain.ErrMalformedInput)
	}
	return m, nil
}

// ImageImporter copies image files into project storage and records them.
// Files are content addressed: a file whose sha256 is already in the project
// is not imported twice.
type ImageImporter struct {
	fs      billy.Filesystem
	store   *repository.Store
	project *domain.Project
}

func NewImageImporter(fs billy.Filesystem, store *repository.Store, project *domain.Project) *ImageImporter {
	return &ImageImporter{fs: fs, store: store, project: project}
}

func (im *ImageImporter) imagesDir() string {
	return im.fs.Join(im.project.StoragePath, "images")
}

// ImportFile imports one image. The boolean is false when the content was
// already in the project, in which case the existing record is returned.
func (im *ImageImporter) ImportFile(ctx context.Context, filename string) (*domain.Image, bool, error) {
	if !IsSupportedImage(filename) {
		return nil, false, fmt.Errorf("unsupported image extension %q: %w", path.Ext(filename), domain.ErrMalformedInput)
	}
	dir := im.imagesDir()
	if err := im.fs.MkdirAll(dir, 0755); err != nil {
		return nil, false, fmt.Errorf("while creating %s: %v: %w", dir, err, domain.ErrIOFailure)
	}

	tempFile := im.fs.Join(dir, fmt.Sprintf("%s.tmp", uuid.New()))
	sum, size, err := im.copyHashed(filename, tempFile)
	if err != nil {
		im.fs.Remove(tempFile)
		return nil, false, err
	}

	existing, err := im.store.Images.GetBySHA256(ctx, im.project.ID, sum)
	if err != nil {
		im.fs.Remove(tempFile)
		return nil, false, err
	}
	if existing != nil {
		im.fs.Remove(tempFile)
		return existing, false, nil
	}

	info, err := im.probe(tempFile)
	if err != nil {
		im.fs.Remove(tempFile)
		return nil, false, fmt.Errorf("%s: %w", filename, err)
	}

	final := im.fs.Join(dir, sum+strings.ToLower(path.Ext(filename)))
	if err := im.fs.Rename(tempFile, final); err != nil {
		im.fs.Remove(tempFile)
		return nil, false, fmt.Errorf("while moving %s into storage: %v: %w", filename, err, domain.ErrIOFailure)
	}

	img, err := im.store.Images.Create(ctx, &domain.Image{
		ProjectID:    im.project.ID,
		Filename:     path.Base(filename),
		OriginalPath: filename,
		StoragePath:  final,
		SHA256:       sum,
		Width:        info.Width,
		Height:       info.Height,
		Size:         size,
		Format:       info.Format,
	})
	if err != nil {
		return nil, false, err
	}
	log.Printf("ImageImporter: imported %s as image %d (%dx%d %s)", filename, img.ID, img.Width, img.Height, img.Format)
	return img, true, nil
}

func (im *ImageImporter) copyHashed(src, dst string) (string, int64, error) {
	in, err := im.fs.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("while opening %s: %v: %w", src, err, domain.ErrIOFailure)
	}
	defer in.Close()
	out, err := im.fs.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("while creating %s: %v: %w", dst, err, domain.ErrIOFailure)
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		out.Close()
		return "", 0, fmt.Errorf("while copying %s: %v: %w", src, err, domain.ErrIOFailure)
	}
	if err := out.Close(); err != nil {
		return "", 0, fmt.Errorf("while closing %s: %v: %w", dst, err, domain.ErrIOFailure)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), n, nil
}

func (im *ImageImporter) probe(filename string) (ImageInfo, error) {
	f, err := im.fs.Open(filename)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("while opening %s: %v: %w", filename, err, domain.ErrIOFailure)
	}
	defer f.Close()
	return ProbeImage(f)
}

// Import imports files and the supported images directly inside
// directories. Per-file failures are counted in the result.
func (im *ImageImporter) Import(ctx context.Context, paths []string) (Result, []*domain.Image, error) {
	var (
		res      Result
		imported []*domain.Image
	)
	files, err := im.expand(paths)
	if err != nil {
		return res, nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, imported, err
		}
		img, created, err := im.ImportFile(ctx, f)
		if err != nil {
			res.skip("%s: %v", f, err)
			continue
		}
		if !created {
			res.skip("%s: duplicate of %s", f, img.Filename)
			continue
		}
		res.Imported++
		imported = append(imported, img)
	}
	log.Printf("ImageImporter: %d imported, %d skipped", res.Imported, res.Skipped)
	return res, imported, nil
}

func (im *ImageImporter) expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		stat, err := im.fs.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("while reading %s: %v: %w", p, err, domain.ErrIOFailure)
		}
		if !stat.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := util.Glob(im.fs, im.fs.Join(p, "*"))
		if err != nil {
			return nil, fmt.Errorf("while listing %s: %v: %w", p, err, domain.ErrIOFailure)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if IsSupportedImage(m) {
				files = append(files, m)
			}
		}
	}
	return files, nil
}

// ThumbnailPath is where the thumbnail of img is stored
func ThumbnailPath(fs billy.Filesystem, project *domain.Project, img *domain.Image) string {
	return fs.Join(project.StoragePath, "thumbnails", img.SHA256+".jpg")
}

type ThumbnailResult struct {
	Generated int64
	Failed    int64
}

// GenerateThumbnails writes a thumbnail fitting size×size for every image,
// using at most jobs workers. progress may be called from several goroutines.
func GenerateThumbnails(ctx context.Context, fs billy.Filesystem, project *domain.Project, images []*domain.Image, size, jobs int, progress func(done, total int)) (ThumbnailResult, error) {
	var generated, failed, done atomic.Int64
	if jobs < 1 {
		jobs = 1
	}
	if err := fs.MkdirAll(fs.Join(project.StoragePath, "thumbnails"), 0755); err != nil {
		return ThumbnailResult{}, fmt.Errorf("while creating thumbnail dir: %v: %w", err, domain.ErrIOFailure)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, img := range images {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeThumbnail(fs, img.StoragePath, ThumbnailPath(fs, project, img), size); err != nil {
				failed.Add(1)
				log.Printf("Thumbnails: %s: %v", img.Filename, err)
			} else {
				generated.Add(1)
			}
			if progress != nil {
				progress(int(done.Add(1)), len(images))
			}
			return nil
		})
	}
	err := g.Wait()
	return ThumbnailResult{Generated: generated.Load(), Failed: failed.Load()}, err
}

func writeThumbnail(fs billy.Filesystem, src, dst string, size int) error {
	img, err := DecodeImage(fs, src)
	if err != nil {
		return err
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)
	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	if err := imaging.Encode(out, thumb, imaging.JPEG); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
