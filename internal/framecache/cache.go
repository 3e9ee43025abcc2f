// Package framecache holds the most recent decoded stereo frame. Writers
// replace it wholesale; readers receive a private copy so they never
// observe a frame being overwritten.
package framecache

import (
	"image"
	"sync"
	"time"

	"github.com/zsiec/rovlink/internal/media"
)

// Snapshot is a copy of the cached frame.
type Snapshot struct {
	Image     *image.RGBA
	Seq       uint64
	UpdatedAt time.Time
}

// Stats describes the cache without copying pixels.
type Stats struct {
	HasFrame  bool      `json:"has_frame"`
	Seq       uint64    `json:"seq"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Cache stores the latest frame. The zero value is ready to use.
type Cache struct {
	mu      sync.Mutex
	img     *image.RGBA
	seq     uint64
	updated time.Time
}

// Store replaces the cached frame with img and returns its sequence number.
// The cache takes ownership of img; callers must not modify it afterwards.
func (c *Cache) Store(img *image.RGBA) uint64 {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = img
	c.seq++
	c.updated = now
	return c.seq
}

// Load returns a deep copy of the cached frame, or false when nothing has
// been stored yet.
func (c *Cache) Load() (Snapshot, bool) {
	c.mu.Lock()
	img, seq, updated := c.img, c.seq, c.updated
	c.mu.Unlock()

	if img == nil {
		return Snapshot{}, false
	}
	// Stored images are never mutated, so copying outside the lock is safe.
	return Snapshot{Image: media.CloneRGBA(img), Seq: seq, UpdatedAt: updated}, true
}

// Stats returns cache metadata.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Seq: c.seq, UpdatedAt: c.updated}
	if c.img != nil {
		s.HasFrame = true
		s.Width = c.img.Bounds().Dx()
		s.Height = c.img.Bounds().Dy()
	}
	return s
}
