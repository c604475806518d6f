package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lewtec/demarca/internal/domain"
)

func TestClassTable(t *testing.T) {
	existing := domain.ClassList{{ID: 0, Name: "car"}, {ID: 4, Name: "person"}}
	table := NewClassTable(existing)

	assert.Equal(t, 4, table.Resolve("person"))
	assert.Equal(t, 5, table.Resolve("bike"))
	assert.Equal(t, 5, table.Resolve("bike"))
	assert.Equal(t, 6, table.Resolve("truck"))

	added := table.Added()
	if assert.Len(t, added, 2) {
		assert.Equal(t, "bike", added[0].Name)
		assert.Equal(t, PaletteColor(5), added[0].Color)
	}
	assert.Len(t, table.Classes(), 4)
	assert.Len(t, existing, 2)

	assert.Equal(t, "truck", table.Name(6))
	assert.Equal(t, "class_9", table.Name(9))
}
