// Package layout sizes the book stage from the first page's native size and
// the viewport, and decides between single and double page spreads.
package layout

import (
	"fmt"
	"math"
	"strings"
)

const (
	// NarrowViewport is the CSS width below which the viewport counts as narrow.
	NarrowViewport = 768

	maxStageWidth    = 1400
	stageWidthRatio  = 0.96
	stageHeightRatio = 0.9

	// DefaultChrome is the toolbar height reserved above the stage.
	DefaultChrome = 64

	minBoundW = 200
	minBoundH = 150
)

// MinimalViewport is used when the real viewport is unusable.
var MinimalViewport = Viewport{Width: 320, Height: 240}

// Size is a width/height pair. Page sizes are in PDF points, stage sizes in CSS px.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both sides are positive and finite.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Landscape reports whether the size is wider than tall.
func (s Size) Landscape() bool { return s.Width > s.Height }

// Viewport is the host view in CSS pixels. Chrome is the height taken by
// toolbars; zero selects DefaultChrome.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Chrome float64 `json:"chrome,omitempty"`
}

func (v Viewport) chrome() float64 {
	if v.Chrome > 0 {
		return v.Chrome
	}
	return DefaultChrome
}

// Narrow reports whether the viewport is below the single-page breakpoint.
func (v Viewport) Narrow() bool { return v.Width < NarrowViewport }

// Bounds returns the maximum stage width and height for the viewport.
func (v Viewport) Bounds() (float64, float64) {
	maxW := math.Min(stageWidthRatio*v.Width, maxStageWidth)
	maxH := math.Min(v.Height-v.chrome(), stageHeightRatio*v.Height)
	return maxW, maxH
}

func (v Viewport) usable() bool {
	w, h := v.Bounds()
	return w >= minBoundW && h >= minBoundH
}

// SpreadMode is the number of pages visible at once.
type SpreadMode string

const (
	Single SpreadMode = "single"
	Double SpreadMode = "double"
)

// Override is the configured spread preference: "auto", "single" or "double".
type Override string

const (
	OverrideAuto   Override = "auto"
	OverrideSingle Override = "single"
	OverrideDouble Override = "double"
)

// ParseOverride maps anything unrecognised to OverrideAuto.
func ParseOverride(s string) Override {
	switch Override(strings.ToLower(strings.TrimSpace(s))) {
	case OverrideSingle:
		return OverrideSingle
	case OverrideDouble:
		return OverrideDouble
	default:
		return OverrideAuto
	}
}

// DecideSpread picks the spread mode. An explicit override wins; otherwise a
// landscape page or a narrow viewport selects single-page mode.
func DecideSpread(o Override, native Size, vp Viewport) SpreadMode {
	switch o {
	case OverrideSingle:
		return Single
	case OverrideDouble:
		return Double
	}
	if native.Landscape() || vp.Narrow() {
		return Single
	}
	return Double
}

// StageSize fits native into the viewport bounds, preserving aspect ratio.
// An unusable viewport degrades to MinimalViewport and reports degraded=true.
func StageSize(native Size, vp Viewport) (Size, bool) {
	degraded := false
	if !vp.usable() {
		vp = MinimalViewport
		degraded = true
	}
	if !native.Valid() {
		return Size{}, true
	}
	maxW, maxH := vp.Bounds()
	if maxW <= 0 || maxH <= 0 {
		maxW, maxH = minBoundW, minBoundH
		degraded = true
	}
	scale := math.Min(maxW/native.Width, maxH/native.Height)
	return Size{
		Width:  floorPx(native.Width * scale),
		Height: floorPx(native.Height * scale),
	}, degraded
}

// floorPx floors v while absorbing float error from scale round trips.
func floorPx(v float64) float64 { return math.Floor(v + 1e-6) }

// Plan is the layout decision for one document run.
type Plan struct {
	Native    Size       `json:"native"`
	Stage     Size       `json:"stage"`
	Spread    SpreadMode `json:"spread"`
	PageWidth float64    `json:"page_width"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// Compute builds a Plan. In Double mode the stage holds two pages side by side.
func Compute(native Size, vp Viewport, o Override) (Plan, error) {
	if !native.Valid() {
		return Plan{}, fmt.Errorf("invalid native page size %vx%v", native.Width, native.Height)
	}
	mode := DecideSpread(o, native, vp)
	return Fit(native, vp, mode), nil
}

// Fit sizes the stage for a fixed spread mode. Used on viewport resize with
// the cached native size.
func Fit(native Size, vp Viewport, mode SpreadMode) Plan {
	book := native
	if mode == Double {
		book.Width *= 2
	}
	stage, degraded := StageSize(book, vp)
	pw := stage.Width
	if mode == Double {
		pw = math.Floor(stage.Width / 2)
	}
	return Plan{Native: native, Stage: stage, Spread: mode, PageWidth: pw, Degraded: degraded}
}
