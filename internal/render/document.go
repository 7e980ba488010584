// Package render turns document pages into encoded bitmaps.
package render

import (
	"context"
	"image"

	"github.com/local/flipbook/internal/layout"
)

// Document abstracts an opened paginated document. Page numbers are 1-based.
type Document interface {
	NumPage() int
	// PageSize returns the native size of a page in PDF points.
	PageSize(page int) (layout.Size, error)
	// Rasterize renders a page at scale (1.0 = 72 dpi).
	Rasterize(page int, scale float64) (*image.RGBA, error)
	// Reentrant reports whether concurrent Rasterize calls are safe.
	Reentrant() bool
	Close() error
}

// Opener abstracts opening document bytes into a Document.
type Opener interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, data []byte) (Document, error)

func (f OpenerFunc) Open(ctx context.Context, data []byte) (Document, error) { return f(ctx, data) }
