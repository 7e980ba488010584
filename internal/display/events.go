package display

import "github.com/local/flipbook/internal/layout"

// EventType names a book change.
type EventType string

const (
	EventInit    EventType = "init"
	EventReplace EventType = "replace"
	EventPage    EventType = "page"
	EventResize  EventType = "resize"
	// EventSnapshot is the first event of every subscription to a ready book.
	EventSnapshot EventType = "snapshot"
)

// PageState is one slot of a snapshot event.
type PageState struct {
	Page    int    `json:"page"`
	Version uint64 `json:"version"`
	Live    bool   `json:"live"`
	Tier    string `json:"tier"`
}

// Event is published to subscribers on every book change.
type Event struct {
	Type      EventType         `json:"type"`
	Page      int               `json:"page,omitempty"`
	PageCount int               `json:"page_count,omitempty"`
	Tier      string            `json:"tier,omitempty"`
	Live      bool              `json:"live,omitempty"`
	Stage     *layout.Size      `json:"stage,omitempty"`
	Spread    layout.SpreadMode `json:"spread,omitempty"`
	Version   uint64            `json:"version"`
	Pages     []PageState       `json:"pages,omitempty"`
}

// Subscribe returns a channel of events and a cancel function. When the book
// is ready the first event is a snapshot of every page. A subscriber whose
// buffer fills up is dropped and its channel closed, so a reader that falls
// behind resubscribes and gets a fresh snapshot instead of missing changes.
func (b *Book) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.ready {
		ch <- b.snapshotLocked()
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; !ok {
			return
		}
		delete(b.subs, ch)
		close(ch)
	}
}

// Close drops every subscriber.
func (b *Book) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Book) snapshotLocked() Event {
	stage := b.stage
	pages := make([]PageState, len(b.pages))
	for i, s := range b.pages {
		pages[i] = PageState{Page: i + 1, Version: s.version, Live: s.live, Tier: s.bm.Tier.String()}
	}
	return Event{
		Type:      EventSnapshot,
		Page:      b.current,
		PageCount: len(b.pages),
		Stage:     &stage,
		Spread:    b.spread,
		Version:   b.version,
		Pages:     pages,
	}
}

func (b *Book) broadcastLocked(ev Event) {
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}
