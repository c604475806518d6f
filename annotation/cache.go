package annotation

import (
	"context"
	"sync"

	"github.com/lewtec/demarca/internal/domain"
)

// ImageCache holds the image list of one project between navigations
type ImageCache struct {
	mu     sync.RWMutex
	images []*domain.Image
}

// NewImageCache creates a new, empty image cache
func NewImageCache() *ImageCache {
	return &ImageCache{}
}

// GetImages returns cached images if available
func (c *ImageCache) GetImages() ([]*domain.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.images != nil {
		return c.images, true
	}
	return nil, false
}

// SetImages caches the images list
func (c *ImageCache) SetImages(images []*domain.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if images == nil {
		images = []*domain.Image{}
	}
	c.images = images
}

// Invalidate drops the cached list
func (c *ImageCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = nil
}

// Load returns the cached list, filling it with fetch on a miss
func (c *ImageCache) Load(ctx context.Context, fetch func(context.Context) ([]*domain.Image, error)) ([]*domain.Image, error) {
	if images, ok := c.GetImages(); ok {
		return images, nil
	}
	images, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.SetImages(images)
	return images, nil
}
