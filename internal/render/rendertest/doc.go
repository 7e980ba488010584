// Package rendertest provides in-memory documents for tests.
package rendertest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/render"
)

// Letter is a US Letter page in points.
var Letter = layout.Size{Width: 612, Height: 792}

// Doc is a fake render.Document whose pages are solid grey rectangles.
type Doc struct {
	Sizes []layout.Size
	// Fail maps a page to the error Rasterize returns for it.
	Fail map[int]error
	// Panic makes Rasterize panic for the listed pages.
	Panic map[int]bool
	// Gate, when set, is received from before every Rasterize.
	Gate chan struct{}
	// Concurrent marks the document as safe for parallel renders.
	Concurrent bool

	mu       sync.Mutex
	parked   int
	calls    []Call
	surfaces []*image.RGBA
	closed   bool
}

// Call records one Rasterize invocation.
type Call struct {
	Page  int
	Scale float64
}

// New returns a document with n Letter pages.
func New(n int) *Doc {
	sizes := make([]layout.Size, n)
	for i := range sizes {
		sizes[i] = Letter
	}
	return &Doc{Sizes: sizes}
}

func (d *Doc) NumPage() int { return len(d.Sizes) }

func (d *Doc) PageSize(page int) (layout.Size, error) {
	if page < 1 || page > len(d.Sizes) {
		return layout.Size{}, fmt.Errorf("no page %d", page)
	}
	return d.Sizes[page-1], nil
}

func (d *Doc) Rasterize(page int, scale float64) (*image.RGBA, error) {
	if d.Gate != nil {
		d.mu.Lock()
		d.parked++
		d.mu.Unlock()
		<-d.Gate
		d.mu.Lock()
		d.parked--
		d.mu.Unlock()
	}
	d.mu.Lock()
	d.calls = append(d.calls, Call{Page: page, Scale: scale})
	d.mu.Unlock()
	if d.Panic[page] {
		panic(fmt.Sprintf("corrupt page %d", page))
	}
	if err := d.Fail[page]; err != nil {
		return nil, err
	}
	s := d.Sizes[page-1]
	w := int(math.Ceil(s.Width * scale))
	h := int(math.Ceil(s.Height * scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: uint8(page * 10)}), image.Point{}, draw.Src)
	d.mu.Lock()
	d.surfaces = append(d.surfaces, img)
	d.mu.Unlock()
	return img, nil
}

func (d *Doc) Reentrant() bool { return d.Concurrent }

func (d *Doc) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Calls returns the Rasterize invocations so far.
func (d *Doc) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Parked returns how many Rasterize calls are waiting on Gate.
func (d *Doc) Parked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parked
}

// Surfaces returns every image handed out by Rasterize.
func (d *Doc) Surfaces() []*image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*image.RGBA(nil), d.surfaces...)
}

// Closed reports whether Close was called.
func (d *Doc) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Opener returns an opener that hands out docs in order, one per Open call.
func Opener(docs ...*Doc) render.Opener {
	var mu sync.Mutex
	return render.OpenerFunc(func(ctx context.Context, data []byte) (render.Document, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(docs) == 0 {
			return nil, fmt.Errorf("not a document")
		}
		d := docs[0]
		docs = docs[1:]
		return d, nil
	})
}
