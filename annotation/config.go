package annotation

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lewtec/demarca/internal/canvas"
	"github.com/lewtec/demarca/internal/domain"
)

type Config struct {
	Meta struct {
		Description string `yaml:"description"`
	} `yaml:"meta"`
	Database   string            `yaml:"database"`
	Storage    string            `yaml:"storage"`
	Project    string            `yaml:"project"`
	Canvas     ConfigCanvas      `yaml:"canvas"`
	Keys       map[string]string `yaml:"keys"`
	Thumbnails ConfigThumbnails  `yaml:"thumbnails"`
	Import     ConfigImport      `yaml:"import"`
	AutoLabel  ConfigAutoLabel   `yaml:"autolabel"`
	Dataset    ConfigDataset     `yaml:"dataset"`
}

type ConfigCanvas struct {
	HandleSize float64 `yaml:"handle_size"`
	MinBoxSize float64 `yaml:"min_box_size"`
	MinScale   float64 `yaml:"min_scale"`
	MaxScale   float64 `yaml:"max_scale"`
}

type ConfigThumbnails struct {
	Size int `yaml:"size"`
	Jobs int `yaml:"jobs"`
}

type ConfigImport struct {
	Overwrite bool `yaml:"overwrite"`
}

type ConfigAutoLabel struct {
	MinConfidence float64 `yaml:"min_confidence"`
	OnlyUnlabeled bool    `yaml:"only_unlabeled"`
}

// ConfigDataset holds the train/val/test percentages of ExportDataset
type ConfigDataset struct {
	Train int   `yaml:"train"`
	Val   int   `yaml:"val"`
	Test  int   `yaml:"test"`
	Seed  int64 `yaml:"seed"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var ret Config
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("while parsing config: %w", err)
	}
	ret.applyDefaults()
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "demarca.db"
	}
	if c.Storage == "" {
		c.Storage = "storage"
	}
	if c.Canvas.HandleSize == 0 {
		c.Canvas.HandleSize = canvas.DefaultHandleSize
	}
	if c.Canvas.MinBoxSize == 0 {
		c.Canvas.MinBoxSize = canvas.DefaultMinBoxSize
	}
	if c.Canvas.MinScale == 0 {
		c.Canvas.MinScale = 0.1
	}
	if c.Canvas.MaxScale == 0 {
		c.Canvas.MaxScale = 5.0
	}
	if c.Thumbnails.Size == 0 {
		c.Thumbnails.Size = 256
	}
	if c.Thumbnails.Jobs == 0 {
		c.Thumbnails.Jobs = 4
	}
	if c.AutoLabel.MinConfidence == 0 {
		c.AutoLabel.MinConfidence = 0.5
	}
	if c.Dataset.Train == 0 && c.Dataset.Val == 0 && c.Dataset.Test == 0 {
		c.Dataset.Train, c.Dataset.Val, c.Dataset.Test = 80, 10, 10
	}
	if c.Dataset.Seed == 0 {
		c.Dataset.Seed = 42
	}
}

// Validate checks value ranges and the key map
func (c *Config) Validate() error {
	if c.Canvas.HandleSize < 0 || c.Canvas.MinBoxSize < 0 {
		return fmt.Errorf("canvas sizes must not be negative: %w", domain.ErrMalformedInput)
	}
	if c.Canvas.MinScale <= 0 || c.Canvas.MaxScale < c.Canvas.MinScale {
		return fmt.Errorf("invalid zoom bounds [%v, %v]: %w", c.Canvas.MinScale, c.Canvas.MaxScale, domain.ErrMalformedInput)
	}
	if c.Thumbnails.Size < 0 || c.Thumbnails.Jobs < 0 {
		return fmt.Errorf("thumbnail size and jobs must not be negative: %w", domain.ErrMalformedInput)
	}
	if c.AutoLabel.MinConfidence < 0 || c.AutoLabel.MinConfidence > 1 {
		return fmt.Errorf("autolabel min_confidence %v outside [0,1]: %w", c.AutoLabel.MinConfidence, domain.ErrMalformedInput)
	}
	d := c.Dataset
	if d.Train < 0 || d.Val < 0 || d.Test < 0 || d.Train+d.Val+d.Test != 100 {
		return fmt.Errorf("dataset split %d/%d/%d must add up to 100: %w", d.Train, d.Val, d.Test, domain.ErrMalformedInput)
	}
	if _, err := canvas.DefaultKeymap().WithOverrides(c.Keys); err != nil {
		return fmt.Errorf("while reading key bindings: %w", err)
	}
	return nil
}

// CanvasConfig builds the interaction machine settings
func (c *Config) CanvasConfig() canvas.Config {
	keymap, err := canvas.DefaultKeymap().WithOverrides(c.Keys)
	if err != nil {
		keymap = canvas.DefaultKeymap()
	}
	return canvas.Config{
		HandleSize: c.Canvas.HandleSize,
		MinBoxSize: c.Canvas.MinBoxSize,
		MinScale:   c.Canvas.MinScale,
		MaxScale:   c.Canvas.MaxScale,
		Keymap:     keymap,
	}
}

// WriteConfig stores c as YAML
func WriteConfig(filename string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("while encoding config: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
