package render

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/layout"
)

// FitzOpener opens documents with MuPDF through go-fitz.
type FitzOpener struct{}

// NewFitzOpener creates a go-fitz backed opener.
func NewFitzOpener() FitzOpener { return FitzOpener{} }

func (FitzOpener) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	d := &fitzDocument{doc: doc, pages: doc.NumPage()}
	log.Debug().Int("pages", d.pages).Int("bytes", len(data)).Msg("opened document with go-fitz")
	return d, nil
}

// fitzDocument serialises every MuPDF call; one fz_context per document is
// not safe for concurrent page renders.
type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) NumPage() int { return d.pages }

func (d *fitzDocument) PageSize(page int) (layout.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return layout.Size{}, fmt.Errorf("document closed")
	}
	// go-fitz uses 0-based indexing
	r, err := d.doc.Bound(page - 1)
	if err != nil {
		return layout.Size{}, fmt.Errorf("failed to read bounds of page %d: %w", page, err)
	}
	return layout.Size{Width: float64(r.Dx()), Height: float64(r.Dy())}, nil
}

func (d *fitzDocument) Rasterize(page int, scale float64) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document closed")
	}
	img, err := d.doc.ImageDPI(page-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDocument) Reentrant() bool { return false }

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
