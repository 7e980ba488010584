package render_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"

	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/render/rendertest"
	"github.com/local/flipbook/internal/tier"
)

var desktop = tier.Policy{Density: 1, ViewportWidth: 1440}

func TestRenderProducesRequestedWidth(t *testing.T) {
	doc := rendertest.New(3)
	r := render.NewRunner(desktop, render.Options{})
	bm, err := r.Render(context.Background(), doc, render.Request{Page: 2, Tier: tier.Preview, TargetCSSWidth: 612})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bm.Page != 2 || bm.Tier != tier.Preview {
		t.Errorf("bitmap = page %d tier %v, want page 2 preview", bm.Page, bm.Tier)
	}
	if bm.Width != 612 || bm.Height != 792 {
		t.Errorf("size = %dx%d, want 612x792", bm.Width, bm.Height)
	}
	img, err := jpeg.Decode(bytes.NewReader(bm.Data))
	if err != nil {
		t.Fatalf("decode main: %v", err)
	}
	if img.Bounds().Dx() != bm.Width {
		t.Errorf("encoded width = %d, want %d", img.Bounds().Dx(), bm.Width)
	}
	th, err := jpeg.Decode(bytes.NewReader(bm.Thumb))
	if err != nil {
		t.Fatalf("decode thumb: %v", err)
	}
	if th.Bounds().Dx() != render.DefaultThumbWidth {
		t.Errorf("thumb width = %d, want %d", th.Bounds().Dx(), render.DefaultThumbWidth)
	}
}

func TestRenderBoundedRasterSize(t *testing.T) {
	tests := []struct {
		name string
		size layout.Size
		tier tier.Tier
		css  float64
	}{
		{"tall strip", layout.Size{Width: 100, Height: 20000}, tier.Retina, 1400},
		{"wide strip", layout.Size{Width: 20000, Height: 100}, tier.Retina, 5000},
		{"huge target", rendertest.Letter, tier.Retina, 9000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &rendertest.Doc{Sizes: []layout.Size{tt.size}}
			r := render.NewRunner(tier.Policy{Density: 3, ViewportWidth: 1440}, render.Options{MaxSide: 1000})
			bm, err := r.Render(context.Background(), doc, render.Request{Page: 1, Tier: tt.tier, TargetCSSWidth: tt.css})
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if bm.Width > 1000 || bm.Height > 1000 {
				t.Errorf("raster %dx%d exceeds max side 1000", bm.Width, bm.Height)
			}
		})
	}
}

func TestRenderFailureIsTagged(t *testing.T) {
	boom := errors.New("corrupt xref")
	doc := rendertest.New(3)
	doc.Fail = map[int]error{2: boom}
	r := render.NewRunner(desktop, render.Options{})
	_, err := r.Render(context.Background(), doc, render.Request{Page: 2, Tier: tier.High})
	var pe *render.PageRenderError
	if !errors.As(err, &pe) {
		t.Fatalf("Render error = %v, want *PageRenderError", err)
	}
	if pe.Page != 2 || pe.Tier != tier.High {
		t.Errorf("PageRenderError = page %d tier %v", pe.Page, pe.Tier)
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(err, boom) = false")
	}
}

func TestRenderRecoversDocumentPanic(t *testing.T) {
	doc := rendertest.New(1)
	doc.Panic = map[int]bool{1: true}
	r := render.NewRunner(desktop, render.Options{})
	bm, err := r.Render(context.Background(), doc, render.Request{Page: 1, Tier: tier.Preview})
	if bm != nil {
		t.Errorf("bitmap = %+v, want nil", bm)
	}
	var pe *render.PageRenderError
	if !errors.As(err, &pe) {
		t.Fatalf("Render error = %v, want *PageRenderError", err)
	}
}

func TestRenderOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Render with page 0 did not panic")
		}
	}()
	r := render.NewRunner(desktop, render.Options{})
	_, _ = r.Render(context.Background(), rendertest.New(1), render.Request{Page: 0, Tier: tier.Preview})
}

func TestRenderReleasesSurface(t *testing.T) {
	doc := rendertest.New(1)
	r := render.NewRunner(desktop, render.Options{MaxSide: 300})
	if _, err := r.Render(context.Background(), doc, render.Request{Page: 1, Tier: tier.Preview, TargetCSSWidth: 612}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	surfaces := doc.Surfaces()
	if len(surfaces) != 1 {
		t.Fatalf("surfaces = %d, want 1", len(surfaces))
	}
	if surfaces[0].Pix != nil {
		t.Error("raster surface still holds its pixel buffer after Render")
	}
}

func TestRenderCancelledContext(t *testing.T) {
	doc := rendertest.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := render.NewRunner(desktop, render.Options{})
	if _, err := r.Render(ctx, doc, render.Request{Page: 1, Tier: tier.Preview}); !errors.Is(err, context.Canceled) {
		t.Errorf("Render error = %v, want context.Canceled", err)
	}
	if n := len(doc.Calls()); n != 0 {
		t.Errorf("Rasterize called %d times after cancel", n)
	}
}

func TestRenderWatermarkKeepsSize(t *testing.T) {
	doc := rendertest.New(1)
	r := render.NewRunner(desktop, render.Options{Watermark: "CONFIDENTIAL"})
	bm, err := r.Render(context.Background(), doc, render.Request{Page: 1, Tier: tier.Preview, TargetCSSWidth: 612})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bm.Width != 612 || bm.Height != 792 {
		t.Errorf("size = %dx%d, want 612x792", bm.Width, bm.Height)
	}
}

func TestClampScale(t *testing.T) {
	native := layout.Size{Width: 100, Height: 400}
	if got := render.ClampScale(native, 5, 4000); got != 5 {
		t.Errorf("ClampScale within bounds = %v, want 5", got)
	}
	got := render.ClampScale(native, 20, 4000)
	if h := native.Height * got; h > 4000 {
		t.Errorf("clamped height = %v, want <= 4000", h)
	}
}

func TestBlank(t *testing.T) {
	bm, err := render.Blank(3, rendertest.Letter, 200)
	if err != nil {
		t.Fatalf("Blank: %v", err)
	}
	if bm.Width != 200 || bm.Height != 259 {
		t.Errorf("Blank size = %dx%d, want 200x259", bm.Width, bm.Height)
	}
	if bm.Tier != tier.None {
		t.Errorf("Blank tier = %v, want none", bm.Tier)
	}
}
