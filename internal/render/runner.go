package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/tier"
)

// Options configures a Runner.
type Options struct {
	MaxSide    int
	Quality    int
	ThumbWidth int
	Watermark  string
}

func (o Options) withDefaults() Options {
	if o.MaxSide <= 0 {
		o.MaxSide = tier.MaxSide
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.ThumbWidth <= 0 {
		o.ThumbWidth = DefaultThumbWidth
	}
	return o
}

// Runner performs single page rasterisations for one document session.
type Runner struct {
	policy tier.Policy
	opts   Options
	mu     sync.Mutex
}

// NewRunner creates a Runner resolving tiers with policy.
func NewRunner(policy tier.Policy, opts Options) *Runner {
	return &Runner{policy: policy, opts: opts.withDefaults()}
}

// Render rasterises req.Page of doc at req.Tier.
//
// A page number outside 1..doc.NumPage() is a caller bug and panics. Every
// failure of the document itself, including a panic inside it, comes back as
// a *PageRenderError. A cancelled ctx returns ctx.Err() before the document is
// touched.
func (r *Runner) Render(ctx context.Context, doc Document, req Request) (bm *Bitmap, err error) {
	if n := doc.NumPage(); req.Page < 1 || req.Page > n {
		panic(fmt.Sprintf("render: page %d out of range [1,%d]", req.Page, n))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !doc.Reentrant() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			bm = nil
			err = &PageRenderError{Page: req.Page, Tier: req.Tier, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	start := time.Now()
	native, err := doc.PageSize(req.Page)
	if err != nil {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: err}
	}
	if !native.Valid() {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: fmt.Errorf("invalid page size %vx%v", native.Width, native.Height)}
	}

	target := r.policy.Resolve(req.Tier, req.TargetCSSWidth)
	scale := ClampScale(native, float64(target)/native.Width, r.opts.MaxSide)

	surface, err := doc.Rasterize(req.Page, scale)
	if err != nil {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: err}
	}
	defer release(surface)
	if surface == nil {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: fmt.Errorf("rasteriser returned no image")}
	}

	img := FitWithin(surface, r.opts.MaxSide)
	if img != surface {
		defer release(img)
	}
	Stamp(img, r.opts.Watermark)

	data, err := EncodeJPEG(img, r.opts.Quality)
	if err != nil {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: err}
	}
	thumb, err := Thumbnail(img, r.opts.ThumbWidth)
	if err != nil {
		return nil, &PageRenderError{Page: req.Page, Tier: req.Tier, Err: err}
	}

	b := img.Bounds()
	log.Debug().
		Int("page", req.Page).
		Str("tier", req.Tier.String()).
		Int("target_px", target).
		Float64("scale", scale).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("jpeg_size", len(data)).
		Dur("dur", time.Since(start)).
		Msg("rendered page")

	return &Bitmap{
		Page:   req.Page,
		Tier:   req.Tier,
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   data,
		Thumb:  thumb,
	}, nil
}
