package annotation

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/lewtec/demarca/internal/codec"
	"github.com/lewtec/demarca/internal/domain"
)

// AddClass appends a class to p. An empty color picks the palette color of
// the new id.
func (a *App) AddClass(ctx context.Context, p *domain.Project, name, color string) (domain.ClassDef, error) {
	if name == "" {
		return domain.ClassDef{}, fmt.Errorf("class name is empty: %w", domain.ErrMalformedInput)
	}
	c := codec.PaletteColor(p.Classes.NextID())
	if color != "" {
		var err error
		if c, err = domain.ParseColor(color); err != nil {
			return domain.ClassDef{}, err
		}
	}
	def, err := a.Store.AddClass(ctx, p.ID, name, c)
	if err != nil {
		return def, fmt.Errorf("while adding class %q: %w", name, err)
	}
	log.Printf("Classes: project %q has class %d %q", p.Name, def.ID, def.Name)
	return def, nil
}

// DeleteClass removes a class by id or name, returning the renumbered class
// list and how many annotations went with it.
func (a *App) DeleteClass(ctx context.Context, p *domain.Project, ref string) (domain.ClassList, int64, error) {
	id, err := findClass(p.Classes, ref)
	if err != nil {
		return nil, 0, err
	}
	return a.Store.DeleteClass(ctx, p.ID, id)
}

// findClass resolves a class reference given as a name or a numeric id.
// Names win over ids.
func findClass(classes domain.ClassList, ref string) (int, error) {
	if c, ok := classes.ByName(ref); ok {
		return c.ID, nil
	}
	if id, err := strconv.Atoi(ref); err == nil {
		if _, ok := classes.ByID(id); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("class %q: %w", ref, domain.ErrNotFound)
}

// ResolveClasses turns class references into ids
func ResolveClasses(classes domain.ClassList, refs []string) ([]int, error) {
	ids := make([]int, 0, len(refs))
	for _, ref := range refs {
		id, err := findClass(classes, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
