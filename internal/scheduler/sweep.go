package scheduler

import (
	"context"

	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/tier"
)

type outcome struct {
	page int
	bm   *render.Bitmap
	err  error
	skip bool
}

// sweep renders pages in order at t and publishes each result as soon as it
// is ready. Pages already at t or better are skipped. A failed page is logged
// and left for the next pass.
func (s *Scheduler) sweep(ctx context.Context, phase Phase, pages []int, t tier.Tier, css float64) error {
	if len(pages) == 0 {
		return ctx.Err()
	}
	if s.cfg.Workers > 1 && s.doc.Reentrant() {
		return s.sweepParallel(ctx, phase, pages, t, css)
	}
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.pages.Highest(p).AtLeast(t) {
			continue
		}
		bm, err := s.render(ctx, p, t, css)
		if err := s.handle(ctx, phase, outcome{page: p, bm: bm, err: err}, t); err != nil {
			return err
		}
		if err := s.cfg.Yield(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) handle(ctx context.Context, phase Phase, o outcome, t tier.Tier) error {
	if o.skip {
		return nil
	}
	if o.err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pageFailed(o.page, t, phase, o.err)
		return nil
	}
	s.publish(phase, o.bm)
	return nil
}

// sweepParallel renders up to Workers pages at once but publishes strictly in
// page order. A finished page waits in its slot until every earlier page has
// been published.
func (s *Scheduler) sweepParallel(ctx context.Context, phase Phase, pages []int, t tier.Tier, css float64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan outcome, len(pages))
	for i := range results {
		results[i] = make(chan outcome, 1)
	}
	window := make(chan struct{}, s.cfg.Workers)

	go func() {
		for i, p := range pages {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				for _, ch := range results[i:] {
					ch <- outcome{err: ctx.Err()}
				}
				return
			}
			if s.pages.Highest(p).AtLeast(t) {
				results[i] <- outcome{page: p, skip: true}
				continue
			}
			go func(i, p int) {
				bm, err := s.render(ctx, p, t, css)
				results[i] <- outcome{page: p, bm: bm, err: err}
			}(i, p)
		}
	}()

	for i := range pages {
		var o outcome
		select {
		case o = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-window
		if err := s.handle(ctx, phase, o, t); err != nil {
			return err
		}
		if o.skip {
			continue
		}
		if err := s.cfg.Yield(ctx); err != nil {
			return err
		}
	}
	return nil
}
