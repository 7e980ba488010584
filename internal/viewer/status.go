package viewer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/local/flipbook/internal/store"
)

// statusWriter stores session progress from its own goroutine so a slow store
// never stalls rendering. Only the latest pending record is kept; records of
// an outdated generation are skipped at write time.
type statusWriter struct {
	store   store.StatusStore
	id      string
	current func() uint64
	log     *zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *store.Status
	seq     uint64
	written uint64
	closed  bool

	kick    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

func newStatusWriter(st store.StatusStore, id string, current func() uint64, l *zerolog.Logger) *statusWriter {
	w := &statusWriter{
		store:   st,
		id:      id,
		current: current,
		log:     l,
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// post queues st, replacing anything not yet written, and returns its
// sequence number. It never blocks on the store.
func (w *statusWriter) post(st store.Status) uint64 {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0
	}
	w.pending = &st
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default:
	}
	return seq
}

// postWait queues st and waits until it, or a newer record, was handled.
func (w *statusWriter) postWait(st store.Status) {
	seq := w.post(st)
	w.mu.Lock()
	for w.written < seq {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *statusWriter) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.kick:
			w.drain()
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *statusWriter) drain() {
	w.mu.Lock()
	st, seq := w.pending, w.seq
	w.pending = nil
	w.mu.Unlock()

	if st != nil && st.Generation == w.current() {
		ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		if err := w.store.Set(ctx, w.id, *st); err != nil {
			w.log.Debug().Err(err).Msg("status write failed")
		}
		cancel()
	}

	w.mu.Lock()
	if seq > w.written {
		w.written = seq
	}
	w.cond.Broadcast()
	w.mu.Unlock()
}

// close writes whatever is pending and stops the goroutine.
func (w *statusWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.quit)
	<-w.stopped
}
