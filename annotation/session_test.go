package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/canvas"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/repository"
)

func handle(t *testing.T, s *Session, events ...canvas.Event) []canvas.Effect {
	t.Helper()
	var all []canvas.Effect
	for _, ev := range events {
		effects, err := s.Handle(context.Background(), ev)
		require.NoError(t, err)
		all = append(all, effects...)
	}
	return all
}

func TestSession_PersistsEffects(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	p := newTestProject(t, app, domain.TaskDetect, "car", "person")
	img := repository.MustCreateImage(t, app.DB, p.ID, "a.png", 100, 50)

	s := app.Session(p, geometry.Size{Width: 100, Height: 50})
	require.NoError(t, s.Open(ctx, 0))
	assert.Equal(t, img.ID, s.Current().ID)

	effects := handle(t, s, canvas.Key("2"), canvas.Down(10, 10), canvas.Move(50, 40), canvas.Up(50, 40))
	require.NotEmpty(t, effects)
	assert.Equal(t, canvas.CreateAnnotation, effects[len(effects)-1].Kind)

	stored := listAnnotations(t, app, img)
	require.Len(t, stored, 1)
	assert.Equal(t, "person", stored[0].ClassName)
	assert.Equal(t, rect(10, 10, 40, 30), stored[0].Geometry.BBox)
	require.Len(t, s.Machine().Annotations(), 1)
	assert.Equal(t, stored[0].ID, s.Machine().Annotations()[0].ID)

	got, err := app.Store.Images.Get(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnnotated, got.Status)

	t.Run("move updates", func(t *testing.T) {
		s.Machine().SetTool(canvas.ToolMove)
		handle(t, s, canvas.Down(20, 20), canvas.Move(25, 25), canvas.Up(25, 25))

		stored := listAnnotations(t, app, img)
		require.Len(t, stored, 1)
		assert.Equal(t, rect(15, 15, 40, 30), stored[0].Geometry.BBox)
	})

	t.Run("delete removes", func(t *testing.T) {
		handle(t, s, canvas.Key("Delete"))
		assert.Empty(t, listAnnotations(t, app, img))

		got, err := app.Store.Images.Get(ctx, img.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	})
}

func TestSession_Navigation(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	p := newTestProject(t, app, domain.TaskDetect, "car")
	first := repository.MustCreateImage(t, app.DB, p.ID, "a.png", 100, 50)
	second := repository.MustCreateImage(t, app.DB, p.ID, "b.png", 80, 80)
	annotate(t, app, second, bboxAnnotation(0, "car", 1, 1, 10, 10))

	s := app.Session(p, geometry.Size{Width: 100, Height: 100})
	require.NoError(t, s.Open(ctx, 0))
	assert.Empty(t, s.Machine().Annotations())

	handle(t, s, canvas.Key("d"))
	assert.Equal(t, 1, s.Index())
	assert.Equal(t, second.ID, s.Current().ID)
	assert.Len(t, s.Machine().Annotations(), 1)

	handle(t, s, canvas.Key("d"))
	assert.Equal(t, 1, s.Index(), "stays on the last image")

	handle(t, s, canvas.Key("a"))
	assert.Equal(t, first.ID, s.Current().ID)

	err := s.Open(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("refresh picks up new images", func(t *testing.T) {
		repository.MustCreateImage(t, app.DB, p.ID, "c.png", 10, 10)
		assert.ErrorIs(t, s.Open(ctx, 2), domain.ErrNotFound, "list is cached")
		s.Refresh()
		assert.NoError(t, s.Open(ctx, 2))
	})
}
