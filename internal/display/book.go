// Package display holds the flip-book model that page images are published
// into and that readers navigate.
package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/render"
)

var (
	ErrNotReady  = errors.New("book not initialised")
	ErrNoPages   = errors.New("book needs at least one page image")
	ErrBadStage  = errors.New("book stage size must be positive")
	ErrNilBitmap = errors.New("nil page image")
)

// Snapshot is a consistent view of one page slot. Bitmap carries both the main
// image and its thumbnail.
type Snapshot struct {
	Page    int
	Bitmap  *render.Bitmap
	Live    bool
	Version uint64
}

type slot struct {
	bm      *render.Bitmap
	live    bool
	version uint64
}

// Book is the display adapter: an ordered list of page images, the current
// page and a fan-out of change events.
type Book struct {
	mu       sync.RWMutex
	ready    bool
	stage    layout.Size
	spread   layout.SpreadMode
	pages    []slot
	current  int
	version  uint64
	onChange []func(page int)
	subs     map[chan Event]struct{}
}

// NewBook returns an uninitialised book.
func NewBook() *Book {
	return &Book{subs: make(map[chan Event]struct{})}
}

// Init replaces the whole book with images, one per page. An image whose Page
// differs from its slot is a placeholder. The current page resets to 1 and
// page-change callbacks fire.
func (b *Book) Init(stage layout.Size, spread layout.SpreadMode, images []*render.Bitmap) error {
	if len(images) == 0 {
		return ErrNoPages
	}
	if !stage.Valid() {
		return ErrBadStage
	}
	pages := make([]slot, len(images))
	for i, bm := range images {
		if bm == nil {
			return fmt.Errorf("page %d: %w", i+1, ErrNilBitmap)
		}
		pages[i] = slot{bm: bm, live: bm.Page == i+1}
	}

	b.mu.Lock()
	b.version++
	for i := range pages {
		pages[i].version = b.version
	}
	b.ready = true
	b.stage = stage
	b.spread = spread
	b.pages = pages
	b.current = 1
	ev := Event{Type: EventInit, Page: 1, PageCount: len(pages), Stage: &stage, Spread: spread, Version: b.version}
	b.broadcastLocked(ev)
	var fns []func(int)
	fns = append(fns, b.onChange...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(1)
	}
	return nil
}

// ReplacePage swaps the image of page. Main image and thumbnail come from the
// same bitmap and change together under one lock.
func (b *Book) ReplacePage(page int, bm *render.Bitmap) error {
	if bm == nil {
		return ErrNilBitmap
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotReady
	}
	if page < 1 || page > len(b.pages) {
		return fmt.Errorf("replace page %d: out of range [1,%d]", page, len(b.pages))
	}
	b.version++
	b.pages[page-1] = slot{bm: bm, live: bm.Page == page, version: b.version}
	b.broadcastLocked(Event{Type: EventReplace, Page: page, Tier: bm.Tier.String(), Live: bm.Page == page, Version: b.version})
	return nil
}

// Resize changes the stage size without touching the images.
func (b *Book) Resize(stage layout.Size) error {
	if !stage.Valid() {
		return ErrBadStage
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotReady
	}
	b.stage = stage
	b.version++
	b.broadcastLocked(Event{Type: EventResize, Stage: &stage, Spread: b.spread, Version: b.version})
	return nil
}

// Page returns a snapshot of page.
func (b *Book) Page(page int) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready || page < 1 || page > len(b.pages) {
		return Snapshot{}, false
	}
	s := b.pages[page-1]
	return Snapshot{Page: page, Bitmap: s.bm, Live: s.live, Version: s.version}, true
}

// Ready reports whether Init succeeded.
func (b *Book) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// PageCount returns the number of page slots.
func (b *Book) PageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pages)
}

// Current returns the page currently shown.
func (b *Book) Current() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Stage returns the stage size and spread mode.
func (b *Book) Stage() (layout.Size, layout.SpreadMode) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stage, b.spread
}

// LiveCount returns how many slots hold their own page's image.
func (b *Book) LiveCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.pages {
		if s.live {
			n++
		}
	}
	return n
}
