package render

import (
	"fmt"

	"github.com/local/flipbook/internal/tier"
)

// Bitmap is an encoded page raster. Data and Thumb are JPEG.
type Bitmap struct {
	Page   int
	Tier   tier.Tier
	Width  int
	Height int
	Data   []byte
	Thumb  []byte
}

// Request asks for one page at one tier. TargetCSSWidth <= 0 means unset.
type Request struct {
	Page           int
	Tier           tier.Tier
	TargetCSSWidth float64
}

// PageRenderError reports a failed rasterisation of one page.
type PageRenderError struct {
	Page int
	Tier tier.Tier
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("render page %d at %s: %v", e.Page, e.Tier, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }
