// Package scheduler drives progressive, tiered rendering of a document into a
// display: a few preview pages first, placeholders for the rest, then a
// background preview pass and an upgrade pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/flipbook/internal/cache"
	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/tier"
)

var (
	// ErrUnreadable means the document cannot be laid out at all.
	ErrUnreadable = errors.New("document unreadable")
	// ErrDisplayInit means the display refused the boot images.
	ErrDisplayInit = errors.New("display init failed")
)

const (
	wideInitialFill   = 4
	narrowInitialFill = 2
)

// Display receives page images.
type Display interface {
	Init(stage layout.Size, spread layout.SpreadMode, images []*render.Bitmap) error
	ReplacePage(page int, bm *render.Bitmap) error
}

// Config tunes one run.
type Config struct {
	// Quality is the tier of the upgrade pass. Preview or None skips it.
	Quality  tier.Tier
	Viewport layout.Viewport
	Spread   layout.Override
	// Workers > 1 renders pages in parallel when the document is reentrant.
	Workers int
	Yield   YieldFunc
	Slots   *limiter.Slots
	// Report, when set, receives a snapshot after every published page and
	// phase change.
	Report func(Snapshot)
	// Logger replaces the default component=scheduler logger.
	Logger *zerolog.Logger
}

// Scheduler renders one document. It is used by a single goroutine.
type Scheduler struct {
	doc     render.Document
	runner  *render.Runner
	pages   *cache.Pages
	display Display
	cfg     Config
	log     zerolog.Logger

	plan  layout.Plan
	fill  int
	mu    sync.Mutex
	phase Phase
	state []PageState
	fails int
}

// New creates a scheduler. pages must have doc.NumPage() entries.
func New(doc render.Document, runner *render.Runner, pages *cache.Pages, display Display, cfg Config) *Scheduler {
	if cfg.Yield == nil {
		cfg.Yield = Pause(0)
	}
	l := logger.Component("scheduler")
	if cfg.Logger != nil {
		l = *cfg.Logger
	}
	return &Scheduler{
		doc:     doc,
		runner:  runner,
		pages:   pages,
		display: display,
		cfg:     cfg,
		log:     l,
		phase:   PhaseIdle,
		state:   make([]PageState, doc.NumPage()),
	}
}

// InitialFill returns how many pages are rendered before handoff.
func InitialFill(vp layout.Viewport) int {
	if vp.Narrow() {
		return narrowInitialFill
	}
	return wideInitialFill
}

// Plan returns the layout decided during Boot.
func (s *Scheduler) Plan() layout.Plan { return s.plan }

// PageWidth is the CSS width one page is rendered for. A degraded layout only
// bounds the stage; rasters then size from the viewport fallback base.
func (s *Scheduler) PageWidth() float64 {
	if s.plan.Degraded {
		return tier.FallbackBase(s.cfg.Viewport.Width)
	}
	return s.plan.PageWidth
}

// PreviewWidth is the CSS width handed to Preview renders, shrunk for large
// documents.
func (s *Scheduler) PreviewWidth() float64 {
	return s.PageWidth() * tier.PreviewScale(s.doc.NumPage())
}

// Run boots and then runs the background passes to completion.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Boot(ctx); err != nil {
		return err
	}
	return s.Background(ctx)
}

// Boot lays out the book, renders the first pages at Preview, fills the rest
// with placeholders and initialises the display. It returns once the display
// is live.
func (s *Scheduler) Boot(ctx context.Context) (layout.Plan, error) {
	s.setPhase(PhaseBoot)
	n := s.doc.NumPage()
	if n == 0 {
		return layout.Plan{}, fmt.Errorf("%w: document has no pages", ErrUnreadable)
	}
	native, err := s.doc.PageSize(1)
	if err != nil {
		return layout.Plan{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	plan, err := layout.Compute(native, s.cfg.Viewport, s.cfg.Spread)
	if err != nil {
		return layout.Plan{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if plan.Degraded {
		s.log.Warn().
			Float64("viewport_w", s.cfg.Viewport.Width).
			Float64("viewport_h", s.cfg.Viewport.Height).
			Msg("layout unavailable for viewport; using minimal bounds")
	}
	s.plan = plan

	s.fill = InitialFill(s.cfg.Viewport)
	if s.fill > n {
		s.fill = n
	}
	css := s.PreviewWidth()
	images := make([]*render.Bitmap, n)
	var last *render.Bitmap
	for p := 1; p <= s.fill; p++ {
		if p > 1 {
			if err := s.cfg.Yield(ctx); err != nil {
				s.cancelRemaining()
				return plan, err
			}
		}
		bm, err := s.render(ctx, p, tier.Preview, css)
		if err != nil {
			if ctx.Err() != nil {
				s.cancelRemaining()
				return plan, ctx.Err()
			}
			s.pageFailed(p, tier.Preview, PhaseBoot, err)
			continue
		}
		if s.pages.Upgrade(bm) {
			images[p-1] = bm
			last = bm
			s.setState(p, PreviewRendered)
		}
	}

	if last == nil {
		blank, err := render.Blank(0, native, int(css))
		if err != nil {
			return plan, fmt.Errorf("%w: %v", ErrDisplayInit, err)
		}
		s.log.Warn().Msg("no boot page rendered; using blank placeholder")
		last = blank
	}
	for i := range images {
		if images[i] == nil {
			images[i] = last
			s.setState(i+1, Placeholder)
		}
	}

	if err := s.display.Init(plan.Stage, plan.Spread, images); err != nil {
		return plan, fmt.Errorf("%w: %w", ErrDisplayInit, err)
	}
	s.log.Info().
		Int("pages", n).
		Int("boot_pages", s.fill).
		Str("spread", string(plan.Spread)).
		Float64("stage_w", plan.Stage.Width).
		Float64("stage_h", plan.Stage.Height).
		Float64("preview_css", css).
		Msg("display initialised")
	s.report()
	return plan, nil
}

// Background renders every page after the initial fill at Preview, then
// upgrades every page to the configured quality. It must follow a successful
// Boot and returns ctx.Err() if cancelled.
func (s *Scheduler) Background(ctx context.Context) error {
	n := s.doc.NumPage()
	s.setPhase(PhaseBackground)
	rest := make([]int, 0, n)
	for p := s.fill + 1; p <= n; p++ {
		rest = append(rest, p)
	}
	if err := s.sweep(ctx, PhaseBackground, rest, tier.Preview, s.PreviewWidth()); err != nil {
		return s.cancelled(err)
	}

	if s.cfg.Quality.Above(tier.Preview) {
		s.setPhase(PhaseUpgrade)
		all := make([]int, n)
		for i := range all {
			all[i] = i + 1
		}
		if err := s.sweep(ctx, PhaseUpgrade, all, s.cfg.Quality, s.PageWidth()); err != nil {
			return s.cancelled(err)
		}
	}
	s.setPhase(PhaseDone)
	s.report()
	s.log.Info().Int("pages", n).Int("failed", s.failures()).Str("quality", s.cfg.Quality.String()).Msg("rendering complete")
	return nil
}

func (s *Scheduler) render(ctx context.Context, page int, t tier.Tier, css float64) (*render.Bitmap, error) {
	release, err := s.cfg.Slots.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	start := time.Now()
	bm, err := s.runner.Render(ctx, s.doc, render.Request{Page: page, Tier: t, TargetCSSWidth: css})
	metrics.ObserveRender(t.String(), resultLabel(err), time.Since(start))
	return bm, err
}

// publish applies bm to the cache and, when it raised the page's tier, to the
// display.
func (s *Scheduler) publish(phase Phase, bm *render.Bitmap) {
	if !s.pages.Upgrade(bm) {
		metrics.IncReplaceDropped("stale_tier")
		s.log.Debug().Int("page", bm.Page).Str("tier", bm.Tier.String()).Msg("bitmap not above cached tier; dropped")
		return
	}
	if err := s.display.ReplacePage(bm.Page, bm); err != nil {
		metrics.IncReplaceDropped("display")
		s.log.Warn().Err(err).Int("page", bm.Page).Msg("display rejected page")
		return
	}
	metrics.IncReplace(string(phase))
	if bm.Tier == tier.Preview {
		s.setState(bm.Page, PreviewRendered)
	} else {
		s.setState(bm.Page, Upgraded)
	}
	s.report()
}

func (s *Scheduler) pageFailed(page int, t tier.Tier, phase Phase, err error) {
	s.mu.Lock()
	s.fails++
	s.mu.Unlock()
	s.log.Warn().Err(err).Int("page", page).Str("tier", t.String()).Str("phase", string(phase)).Msg("page render failed; keeping previous image")
}

func (s *Scheduler) cancelled(err error) error {
	s.cancelRemaining()
	s.setPhase(PhaseCancelled)
	s.log.Debug().Err(err).Msg("rendering cancelled")
	return err
}

// cancelRemaining marks every page that has not reached its final state.
func (s *Scheduler) cancelRemaining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.state {
		if st != Upgraded {
			s.state[i] = Cancelled
		}
	}
}

func (s *Scheduler) setState(page int, st PageState) {
	s.mu.Lock()
	s.state[page-1] = st
	s.mu.Unlock()
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fails
}

// State returns the state of page.
func (s *Scheduler) State(page int) PageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 || page > len(s.state) {
		return NotRendered
	}
	return s.state[page-1]
}

// Snapshot returns the current progress.
func (s *Scheduler) Snapshot() Snapshot {
	target := s.cfg.Quality
	if !target.Above(tier.Preview) {
		target = tier.Preview
	}
	rendered, upgraded := s.pages.Counts(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:    s.phase,
		Pages:    len(s.state),
		Rendered: rendered,
		Upgraded: upgraded,
		Failed:   s.fails,
		Quality:  s.cfg.Quality,
	}
}

func (s *Scheduler) report() {
	if s.cfg.Report != nil {
		s.cfg.Report(s.Snapshot())
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
