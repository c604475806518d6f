package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/repository"
)

func TestApp_AddClass(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	p := newTestProject(t, app, domain.TaskDetect, "car", "person")

	def, err := app.AddClass(ctx, p, "truck", "#00ff00")
	require.NoError(t, err)
	assert.Equal(t, domain.ClassDef{ID: 2, Name: "truck", Color: domain.Color{G: 255}}, def)

	def, err = app.AddClass(ctx, p, "car", "")
	require.NoError(t, err)
	assert.Equal(t, 0, def.ID, "existing names keep their id")

	_, err = app.AddClass(ctx, p, "bus", "green")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
	_, err = app.AddClass(ctx, p, "", "")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	assert.Len(t, reloadProject(t, app, p).Classes, 3)
}

func TestApp_DeleteClass(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	p := newTestProject(t, app, domain.TaskDetect, "car", "person", "truck")
	a := repository.MustCreateImage(t, app.DB, p.ID, "a.png", 100, 100)
	b := repository.MustCreateImage(t, app.DB, p.ID, "b.png", 100, 100)
	annotate(t, app, a, bboxAnnotation(0, "car", 1, 1, 5, 5), bboxAnnotation(2, "truck", 10, 10, 5, 5))
	annotate(t, app, b, bboxAnnotation(0, "car", 1, 1, 5, 5))

	classes, deleted, err := app.DeleteClass(ctx, p, "car")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.Len(t, classes, 2)
	assert.Equal(t, "person", classes.NameOf(0))
	assert.Equal(t, "truck", classes.NameOf(1))

	anns := listAnnotations(t, app, a)
	require.Len(t, anns, 1)
	assert.Equal(t, 1, anns[0].ClassID)
	assert.Equal(t, "truck", anns[0].ClassName)

	img, err := app.Store.Images.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, img.Status)

	_, _, err = app.DeleteClass(ctx, p, "unicorn")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveClasses(t *testing.T) {
	classes := domain.ClassList{{ID: 0, Name: "car"}, {ID: 1, Name: "7"}, {ID: 2, Name: "bus"}}

	ids, err := ResolveClasses(classes, []string{"bus", "0", "7"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, ids, "names win over ids")

	_, err = ResolveClasses(classes, []string{"9"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
