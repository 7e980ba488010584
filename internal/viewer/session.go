// Package viewer owns viewer sessions: one display book per session, fed by a
// scheduler run per loaded document. A newer load supersedes the older run by
// bumping the session generation.
package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/flipbook/internal/cache"
	"github.com/local/flipbook/internal/display"
	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/scheduler"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/store"
	"github.com/local/flipbook/internal/tier"
)

const statusWriteTimeout = 2 * time.Second

// Loader fetches and checks document bytes.
type Loader interface {
	Load(ctx context.Context, ref string) (*source.Document, error)
}

// Deps are shared by every session of a registry.
type Deps struct {
	Loader  Loader
	Opener  render.Opener
	Status  store.StatusStore
	Slots   *limiter.Slots
	Render  render.Options
	Workers int
	Yield   time.Duration
}

// Options are the per-document viewer settings.
type Options struct {
	Quality   tier.Tier
	Spread    layout.Override
	Watermark string
	Viewport  layout.Viewport
	Density   float64
}

type run struct {
	gen         uint64
	ref         string
	fingerprint string
	doc         render.Document
	pages       *cache.Pages
	sched       *scheduler.Scheduler
	plan        layout.Plan
	opts        Options
	done        chan struct{}
}

// Session is one viewer: a book, the current document run and view state.
type Session struct {
	ID      string
	Created time.Time

	deps Deps
	book *display.Book
	log  zerolog.Logger
	// page is written by book callbacks, which may run under mu.
	page atomic.Int64

	mu     sync.Mutex
	gen    uint64
	cur    *run
	cancel context.CancelFunc
	zoom   float64
	used   time.Time
	closed bool
	stale  int

	status *statusWriter
}

// State is the reader's view of the book. Page follows the book's
// page-change notifications; Spread is fixed when a document boots.
type State struct {
	Page   int               `json:"page"`
	Zoom   float64           `json:"zoom"`
	Spread layout.SpreadMode `json:"spread,omitempty"`
}

// Summary describes a session for API responses.
type Summary struct {
	ID          string              `json:"id"`
	Generation  uint64              `json:"generation"`
	Ref         string              `json:"ref,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Pages       int                 `json:"pages"`
	Current     int                 `json:"current"`
	Live        int                 `json:"live"`
	Zoom        float64             `json:"zoom"`
	Quality     string              `json:"quality,omitempty"`
	Plan        *layout.Plan        `json:"plan,omitempty"`
	Progress    *scheduler.Snapshot `json:"progress,omitempty"`
	// StaleDropped counts publishes of superseded runs the book refused.
	StaleDropped int `json:"stale_dropped"`
}

func newSession(id string, deps Deps) *Session {
	now := time.Now()
	s := &Session{
		ID:      id,
		Created: now,
		deps:    deps,
		book:    display.NewBook(),
		log:     logger.Component("viewer").With().Str("session", id).Logger(),
		zoom:    MinZoom,
		used:    now,
	}
	s.book.OnPageChanged(func(p int) { s.page.Store(int64(p)) })
	if deps.Status != nil {
		s.status = newStatusWriter(deps.Status, id, s.generation, &s.log)
	}
	return s
}

// Book returns the display book. It stays the same across document loads.
func (s *Session) Book() *display.Book { return s.book }

// Load fetches ref, boots a new run and returns once the book shows it. Any
// earlier run of the session is cancelled first and can no longer write to
// the book. Cancelling ctx aborts the load while it is booting; the
// background passes then continue on their own.
func (s *Session) Load(ctx context.Context, ref string, opts Options) (Summary, error) {
	gen, runCtx, cancel, err := s.begin()
	if err != nil {
		return Summary{}, err
	}
	l := s.log.With().Uint64("generation", gen).Logger()
	s.writeStatus(gen, store.Status{Status: store.StatusLoading, Generation: gen, Tier: opts.Quality.String()})
	l.Info().Str("quality", opts.Quality.String()).Str("spread", string(opts.Spread)).Msg("loading document")

	stop := context.AfterFunc(ctx, cancel)
	r, err := s.boot(runCtx, gen, ref, opts, &l)
	if !stop() && err == nil {
		r.doc.Close()
		err = context.Canceled
	}
	if err == nil {
		err = s.promote(r)
	}
	if err != nil {
		cancel()
		if s.generation() != gen {
			err = ErrSuperseded
		}
		kind := Classify(err)
		metrics.IncLoad(kind.String())
		if kind == KindCancelled {
			l.Info().Err(err).Msg("load abandoned")
		} else {
			l.Error().Err(err).Str("kind", kind.String()).Msg("load failed")
			s.writeStatusWait(gen, store.Status{Status: store.StatusFailed, Generation: gen, Message: err.Error()})
		}
		return Summary{}, err
	}

	metrics.IncLoad(KindNone.String())
	go s.background(runCtx, r, &l)
	return s.Summary(), nil
}

// begin bumps the generation and cancels the previous run.
func (s *Session) begin() (uint64, context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, nil, ErrClosed
	}
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.used = time.Now()
	return s.gen, ctx, cancel, nil
}

func (s *Session) boot(ctx context.Context, gen uint64, ref string, opts Options, l *zerolog.Logger) (*run, error) {
	src, err := s.deps.Loader.Load(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &LoadError{Ref: ref, Err: err}
	}
	doc, err := s.deps.Opener.Open(ctx, src.Data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &LoadError{Ref: ref, Err: err}
	}
	if src.Pages > 0 && src.Pages != doc.NumPage() {
		l.Warn().Int("checked_pages", src.Pages).Int("pages", doc.NumPage()).Msg("page count mismatch between structure check and rasteriser")
	}

	ropts := s.deps.Render
	ropts.Watermark = opts.Watermark
	policy := tier.Policy{Density: tier.ClampDensity(opts.Density), ViewportWidth: opts.Viewport.Width}
	r := &run{
		gen:         gen,
		ref:         ref,
		fingerprint: src.Fingerprint,
		doc:         doc,
		pages:       cache.New(doc.NumPage()),
		opts:        opts,
		done:        make(chan struct{}),
	}
	sl := logger.Component("scheduler").With().Str("session", s.ID).Uint64("generation", gen).Logger()
	r.sched = scheduler.New(doc, render.NewRunner(policy, ropts), r.pages, sink{s: s, gen: gen}, scheduler.Config{
		Quality:  opts.Quality,
		Viewport: opts.Viewport,
		Spread:   opts.Spread,
		Workers:  s.deps.Workers,
		Yield:    scheduler.Pause(s.deps.Yield),
		Slots:    s.deps.Slots,
		Report:   s.reporter(gen, src.Fingerprint),
		Logger:   &sl,
	})

	plan, err := r.sched.Boot(ctx)
	if err != nil {
		doc.Close()
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, ErrSuperseded):
			return nil, ErrSuperseded
		case errors.Is(err, scheduler.ErrDisplayInit):
			return nil, &AdapterInitError{Err: err}
		default:
			return nil, &LoadError{Ref: ref, Err: err}
		}
	}
	r.plan = plan
	return r, nil
}

// promote makes r the current run unless a newer load has started.
func (s *Session) promote(r *run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != r.gen || s.closed {
		r.doc.Close()
		return ErrSuperseded
	}
	s.cur = r
	return nil
}

func (s *Session) background(ctx context.Context, r *run, l *zerolog.Logger) {
	defer close(r.done)
	defer r.doc.Close()

	err := r.sched.Background(ctx)
	snap := r.sched.Snapshot()
	st := statusFrom(r.gen, r.fingerprint, snap)
	if err != nil {
		st.Status = store.StatusCancelled
		l.Info().Int("rendered", snap.Rendered).Int("upgraded", snap.Upgraded).Msg("run stopped")
	} else {
		st.Status = store.StatusReady
	}
	s.writeStatusWait(r.gen, st)
}

// sink publishes into the session book for one generation only.
type sink struct {
	s   *Session
	gen uint64
}

func (k sink) Init(stage layout.Size, spread layout.SpreadMode, images []*render.Bitmap) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if k.s.gen != k.gen || k.s.closed {
		return ErrSuperseded
	}
	return k.s.book.Init(stage, spread, images)
}

func (k sink) ReplacePage(page int, bm *render.Bitmap) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if k.s.gen != k.gen || k.s.closed {
		k.s.stale++
		metrics.IncReplaceDropped("stale_generation")
		return ErrSuperseded
	}
	return k.s.book.ReplacePage(page, bm)
}

func (s *Session) reporter(gen uint64, fingerprint string) func(scheduler.Snapshot) {
	return func(snap scheduler.Snapshot) {
		st := statusFrom(gen, fingerprint, snap)
		st.Status = store.StatusRendering
		s.writeStatus(gen, st)
	}
}

func statusFrom(gen uint64, fingerprint string, snap scheduler.Snapshot) store.Status {
	return store.Status{
		Generation:  gen,
		Fingerprint: fingerprint,
		Pages:       snap.Pages,
		Rendered:    snap.Rendered,
		Upgraded:    snap.Upgraded,
		Failed:      snap.Failed,
		Tier:        snap.Quality.String(),
		Phase:       string(snap.Phase),
	}
}

// writeStatus queues st if gen is still the session's generation. It does
// not wait for the store.
func (s *Session) writeStatus(gen uint64, st store.Status) {
	if s.status == nil || s.generation() != gen {
		return
	}
	s.status.post(st)
}

// writeStatusWait is writeStatus for final records; it returns once st is
// stored or superseded.
func (s *Session) writeStatusWait(gen uint64, st store.Status) {
	if s.status == nil || s.generation() != gen {
		return
	}
	s.status.postWait(st)
}

func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Status returns the stored progress record.
func (s *Session) Status(ctx context.Context) (store.Status, bool, error) {
	if s.deps.Status == nil {
		return store.Status{}, false, nil
	}
	return s.deps.Status.Get(ctx, s.ID)
}

// State returns the current viewer state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Page: int(s.page.Load()), Zoom: s.zoom}
	if s.cur != nil {
		st.Spread = s.cur.plan.Spread
	}
	return st
}

// Summary returns the current view of the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	sum := Summary{ID: s.ID, Generation: s.gen, Zoom: s.zoom, StaleDropped: s.stale}
	r := s.cur
	if r != nil {
		plan := r.plan
		sum.Ref = r.ref
		sum.Fingerprint = r.fingerprint
		sum.Quality = r.opts.Quality.String()
		sum.Plan = &plan
	}
	s.mu.Unlock()
	if r != nil {
		snap := r.sched.Snapshot()
		sum.Progress = &snap
		sum.Pages = s.book.PageCount()
		sum.Current = s.book.Current()
		sum.Live = s.book.LiveCount()
	}
	return sum
}

// Resize recomputes the stage for a new viewport. The spread mode chosen at
// load time is kept.
func (s *Session) Resize(vp layout.Viewport) (layout.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = time.Now()
	if s.cur == nil {
		return layout.Plan{}, ErrNoDocument
	}
	r := s.cur
	plan := layout.Fit(r.plan.Native, vp, r.plan.Spread)
	if plan.Degraded {
		s.log.Warn().Float64("viewport_w", vp.Width).Float64("viewport_h", vp.Height).Msg("layout unavailable for viewport; using minimal bounds")
	}
	if err := s.book.Resize(plan.Stage); err != nil {
		return layout.Plan{}, err
	}
	r.plan = plan
	r.opts.Viewport = vp
	return plan, nil
}

// NavigateTo shows page, clamped to the document.
func (s *Session) NavigateTo(page int) int {
	s.Touch()
	return s.book.NavigateTo(page)
}

// FlipNext advances one page or spread.
func (s *Session) FlipNext() int {
	s.Touch()
	return s.book.FlipNext()
}

// FlipPrev goes back one page or spread.
func (s *Session) FlipPrev() int {
	s.Touch()
	return s.book.FlipPrev()
}

// Done is closed when the current run has finished its background passes. It
// is nil before the first successful load.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.done
}

// Wait blocks until the current run finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	done := s.Done()
	if done == nil {
		return ErrNoDocument
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.used = time.Now()
	s.mu.Unlock()
}

// IdleFor returns how long the session has not been used as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.used)
}

// Close cancels the current run and ends every event subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.book.Close()
	if s.status != nil {
		s.status.close()
	}
	if s.deps.Status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		defer cancel()
		_ = s.deps.Status.Delete(ctx, s.ID)
	}
	s.log.Info().Msg("session closed")
}
