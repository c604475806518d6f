package canvas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lewtec/demarca/internal/domain"
)

// Action is the semantic meaning of a key
type Action int

const (
	ActionNone Action = iota
	ActionDelete
	ActionCancel
	ActionCommit
	ActionToolRectangle
	ActionToolPolygon
	ActionToolMove
	ActionResetView
	ActionSelectClass
	ActionPrevImage
	ActionNextImage
)

var actionNames = map[string]Action{
	"delete":         ActionDelete,
	"cancel":         ActionCancel,
	"commit":         ActionCommit,
	"tool.rectangle": ActionToolRectangle,
	"tool.polygon":   ActionToolPolygon,
	"tool.move":      ActionToolMove,
	"view.reset":     ActionResetView,
	"image.prev":     ActionPrevImage,
	"image.next":     ActionNextImage,
}

// ParseAction resolves a configured action name. "class.N" selects the Nth
// class, counting from 1.
func ParseAction(name string) (Binding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := actionNames[name]; ok {
		return Binding{Action: a}, nil
	}
	if rest, ok := strings.CutPrefix(name, "class."); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 1 {
			return Binding{Action: ActionSelectClass, Index: n - 1}, nil
		}
	}
	return Binding{}, fmt.Errorf("key action %q: %w", name, domain.ErrMalformedInput)
}

// Binding is what a key resolves to. Index is the zero-based class position
// for ActionSelectClass.
type Binding struct {
	Action Action
	Index  int
}

// Keymap maps raw key names (case-insensitive) to bindings
type Keymap map[string]Binding

// DefaultKeymap returns the stock shortcuts
func DefaultKeymap() Keymap {
	k := Keymap{
		"w":         {Action: ActionToolRectangle},
		"p":         {Action: ActionToolPolygon},
		"v":         {Action: ActionToolMove},
		"r":         {Action: ActionResetView},
		"a":         {Action: ActionPrevImage},
		"d":         {Action: ActionNextImage},
		"delete":    {Action: ActionDelete},
		"backspace": {Action: ActionDelete},
		"escape":    {Action: ActionCancel},
		"enter":     {Action: ActionCommit},
		"return":    {Action: ActionCommit},
	}
	for i := 1; i <= 9; i++ {
		k[strconv.Itoa(i)] = Binding{Action: ActionSelectClass, Index: i - 1}
	}
	return k
}

// Lookup resolves a raw key name
func (k Keymap) Lookup(key string) (Binding, bool) {
	b, ok := k[strings.ToLower(key)]
	return b, ok
}

// Bind assigns a key to a named action, replacing any previous binding
func (k Keymap) Bind(key, action string) error {
	b, err := ParseAction(action)
	if err != nil {
		return err
	}
	k[strings.ToLower(key)] = b
	return nil
}

// WithOverrides returns a copy of k with the key→action pairs applied
func (k Keymap) WithOverrides(overrides map[string]string) (Keymap, error) {
	out := make(Keymap, len(k)+len(overrides))
	for key, b := range k {
		out[key] = b
	}
	for key, action := range overrides {
		if err := out.Bind(key, action); err != nil {
			return nil, err
		}
	}
	return out, nil
}
