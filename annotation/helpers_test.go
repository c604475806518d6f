package annotation

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/repository"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	db := repository.SetupTestDB(t)
	t.Cleanup(func() { repository.CleanupTestDB(t, db) })
	cfg := DefaultConfig()
	cfg.Storage = "/storage"
	return NewAppWithDB(cfg, memfs.New(), db)
}

func newTestProject(t *testing.T, app *App, task domain.Task, classes ...string) *domain.Project {
	t.Helper()
	p, err := app.CreateProject(context.Background(), "test", "", task, domain.AngleRadians, classes)
	require.NoError(t, err)
	return p
}

// solid returns a w×h image filled with a color derived from seed, so that
// different seeds give different file contents
func solid(w, h int, seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: seed, G: 255 - seed, B: seed / 2, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, fs billy.Filesystem, name string, w, h int, seed uint8) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h, seed)))
	require.NoError(t, util.WriteFile(fs, name, buf.Bytes(), 0644))
}

func writeBMP(t *testing.T, fs billy.Filesystem, name string, w, h int, seed uint8) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, solid(w, h, seed)))
	require.NoError(t, util.WriteFile(fs, name, buf.Bytes(), 0644))
}

func writeText(t *testing.T, fs billy.Filesystem, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, name, []byte(content), 0644))
}

func importImage(t *testing.T, app *App, p *domain.Project, name string, w, h int, seed uint8) *domain.Image {
	t.Helper()
	writePNG(t, app.FS, name, w, h, seed)
	img, created, err := app.ImageImporter(p).ImportFile(context.Background(), name)
	require.NoError(t, err)
	require.True(t, created)
	return img
}

func listAnnotations(t *testing.T, app *App, img *domain.Image) []*domain.Annotation {
	t.Helper()
	anns, err := app.Store.ListAnnotations(context.Background(), img.ID)
	require.NoError(t, err)
	return anns
}

func reloadProject(t *testing.T, app *App, p *domain.Project) *domain.Project {
	t.Helper()
	got, err := app.Store.Projects.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func rect(x, y, w, h float64) geometry.Rect {
	return geometry.Rect{X: x, Y: y, Width: w, Height: h}
}
