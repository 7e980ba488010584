package display

import "github.com/local/flipbook/internal/layout"

// OnPageChanged registers fn to be called after every change of the current
// page. Callbacks run outside the book's lock.
func (b *Book) OnPageChanged(fn func(page int)) {
	b.mu.Lock()
	b.onChange = append(b.onChange, fn)
	b.mu.Unlock()
}

// NavigateTo shows page, clamped to the book. It returns the page shown.
func (b *Book) NavigateTo(page int) int {
	return b.move(func(cur, n int, _ layout.SpreadMode) int { return page })
}

// FlipNext advances one page, or one spread in double mode.
func (b *Book) FlipNext() int {
	return b.move(func(cur, n int, mode layout.SpreadMode) int {
		if mode != layout.Double {
			return cur + 1
		}
		// cover stands alone, then (2,3), (4,5), ...
		if cur%2 == 0 {
			return cur + 2
		}
		return cur + 1
	})
}

// FlipPrev goes back one page, or one spread in double mode.
func (b *Book) FlipPrev() int {
	return b.move(func(cur, n int, mode layout.SpreadMode) int {
		if mode != layout.Double {
			return cur - 1
		}
		if cur%2 == 0 {
			return cur - 2
		}
		return cur - 3
	})
}

func (b *Book) move(next func(cur, n int, mode layout.SpreadMode) int) int {
	b.mu.Lock()
	if !b.ready {
		b.mu.Unlock()
		return 0
	}
	n := len(b.pages)
	p := next(b.current, n, b.spread)
	if p < 1 {
		p = 1
	}
	if p > n {
		p = n
	}
	changed := p != b.current
	b.current = p
	var fns []func(int)
	if changed {
		b.version++
		b.broadcastLocked(Event{Type: EventPage, Page: p, Version: b.version})
		fns = append(fns, b.onChange...)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
	return p
}
