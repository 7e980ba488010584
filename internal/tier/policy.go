package tier

import "math"

const (
	// MaxSide is the default hard cap on either raster dimension.
	MaxSide = 4000

	// MaxDensity bounds the device pixel ratio fed into the multipliers.
	MaxDensity = 3.0

	// WideViewport is the CSS width at and above which a viewport counts as wide.
	WideViewport = 1024

	wideFallbackBase   = 1200
	narrowFallbackBase = 800
)

// Policy carries the per-session inputs of Resolve.
type Policy struct {
	Density       float64
	ViewportWidth float64
}

// Resolve returns the target pixel width for t using the policy's density and
// viewport.
func (p Policy) Resolve(t Tier, targetCSSWidth float64) int {
	return Resolve(t, p.Density, p.ViewportWidth, targetCSSWidth)
}

// Resolve maps a tier to a target raster width in device pixels.
//
// targetCSSWidth <= 0 means unset; the base then falls back to a width derived
// from the viewport.
func Resolve(t Tier, density, viewportWidth, targetCSSWidth float64) int {
	base := targetCSSWidth
	if base <= 0 {
		base = FallbackBase(viewportWidth)
	}
	w := int(math.Floor(base * Multiplier(t, density)))
	if w < 1 {
		w = 1
	}
	return w
}

// FallbackBase is the CSS base width used when the caller has no target width.
func FallbackBase(viewportWidth float64) float64 {
	if viewportWidth >= WideViewport {
		return wideFallbackBase
	}
	return narrowFallbackBase
}

// ClampDensity treats a non-positive density as 1 and caps it at MaxDensity.
func ClampDensity(d float64) float64 {
	if d <= 0 || math.IsNaN(d) {
		return 1
	}
	return math.Min(d, MaxDensity)
}

// Multiplier returns the width multiplier for t at the given density.
// Preview ignores density.
func Multiplier(t Tier, density float64) float64 {
	d := ClampDensity(density)
	switch t {
	case Preview:
		return 1.0
	case Auto:
		if d >= 2 {
			return 1.5
		}
		return 1.2
	case High:
		return math.Max(1.6, d)
	case Retina:
		return math.Max(2.0, d*1.5)
	default:
		return 1.0
	}
}

// PreviewScale shrinks the Preview base width for large documents so the first
// pass over every page stays bounded in time.
func PreviewScale(pageCount int) float64 {
	switch {
	case pageCount > 48:
		return 0.75
	case pageCount > 24:
		return 0.85
	default:
		return 1.0
	}
}
