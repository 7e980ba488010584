package viewer

import (
	"context"
	"sync"
	"testing"

	"github.com/local/flipbook/internal/render/rendertest"
	"github.com/local/flipbook/internal/store"
)

// heldStatus blocks every Set until release is closed.
type heldStatus struct {
	*store.MemoryStatus
	release chan struct{}

	mu      sync.Mutex
	waiting int
	sets    int
}

func (h *heldStatus) Set(ctx context.Context, id string, st store.Status) error {
	h.mu.Lock()
	h.waiting++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.waiting--
		h.sets++
		h.mu.Unlock()
	}()
	select {
	case <-h.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return h.MemoryStatus.Set(ctx, id, st)
}

func (h *heldStatus) counts() (waiting, sets int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiting, h.sets
}

func TestSlowStatusStoreDoesNotStallRendering(t *testing.T) {
	held := &heldStatus{MemoryStatus: store.NewMemoryStatus(), release: make(chan struct{})}
	deps := testDeps(rendertest.New(10))
	deps.Status = held
	s := newTestSession(t, deps)
	defer s.Close()
	released := false
	defer func() {
		if !released {
			close(held.release)
		}
	}()

	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitFor(t, "all pages live", func() bool { return s.Book().LiveCount() == 10 })
	waitFor(t, "a held status write", func() bool { w, _ := held.counts(); return w == 1 })
	if _, sets := held.counts(); sets != 0 {
		t.Fatalf("store finished %d writes while held, want 0", sets)
	}

	close(held.release)
	released = true
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	st, ok, _ := s.Status(context.Background())
	if !ok || st.Status != store.StatusReady || st.Pages != 10 {
		t.Errorf("stored status = %+v, want ready with 10 pages", st)
	}
	// Intermediate progress records coalesce while the store is slow.
	if _, sets := held.counts(); sets >= 10 {
		t.Errorf("store saw %d writes, want progress coalesced", sets)
	}
}
