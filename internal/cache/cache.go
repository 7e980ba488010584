// Package cache keeps the best bitmap rendered so far for every page of one
// document session.
package cache

import (
	"sync"

	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/tier"
)

// Entry is the cached state of one page.
type Entry struct {
	Page    int
	Highest tier.Tier
	Bitmap  *render.Bitmap
}

// Pages is a per-page bitmap cache whose tiers only move forward.
//
// Writes come from a single consumer; the lock exists for concurrent readers.
type Pages struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates a cache for pageCount pages.
func New(pageCount int) *Pages {
	entries := make([]Entry, pageCount)
	for i := range entries {
		entries[i].Page = i + 1
	}
	return &Pages{entries: entries}
}

// Len returns the number of pages tracked.
func (c *Pages) Len() int { return len(c.entries) }

// Upgrade stores bm if its tier is above the page's current tier. It reports
// whether the bitmap was applied.
func (c *Pages) Upgrade(bm *render.Bitmap) bool {
	if bm == nil || !bm.Tier.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := bm.Page - 1
	if i < 0 || i >= len(c.entries) {
		return false
	}
	e := &c.entries[i]
	if !bm.Tier.Above(e.Highest) {
		return false
	}
	e.Highest = bm.Tier
	e.Bitmap = bm
	return true
}

// Get returns the entry for page, and false when nothing was rendered yet.
func (c *Pages) Get(page int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := page - 1
	if i < 0 || i >= len(c.entries) || c.entries[i].Highest == tier.None {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Highest returns the tier cached for page, tier.None when absent.
func (c *Pages) Highest(page int) tier.Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := page - 1
	if i < 0 || i >= len(c.entries) {
		return tier.None
	}
	return c.entries[i].Highest
}

// Counts returns how many pages have any bitmap and how many reached at
// least t.
func (c *Pages) Counts(t tier.Tier) (rendered, reached int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.Highest != tier.None {
			rendered++
		}
		if e.Highest.AtLeast(t) {
			reached++
		}
	}
	return rendered, reached
}
