package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/tier"
)

const (
	DefaultBackground = "solid:#0f0f13"
	MaxWatermarkRunes = 64

	proxyPrefix = "/api/proxy?url="
)

var colorRe = regexp.MustCompile(`^(#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})|[a-zA-Z]{3,20}|(rgb|rgba|hsl|hsla)\([0-9.,%\s]{1,40}\))$`)

// BackgroundKind is the type of stage background.
type BackgroundKind string

const (
	BackgroundSolid    BackgroundKind = "solid"
	BackgroundGradient BackgroundKind = "gradient"
	BackgroundImage    BackgroundKind = "image"
)

// Background is a parsed bg option.
type Background struct {
	Kind  BackgroundKind `json:"kind"`
	Shape string         `json:"shape,omitempty"` // linear or radial
	From  string         `json:"from,omitempty"`  // solid color or first stop
	To    string         `json:"to,omitempty"`
	Image string         `json:"image,omitempty"`
}

// ParseBackground parses solid:<color>, gradient:<linear|radial>,<c1>,<c2> or
// image:<http(s) url>. Anything else yields the default.
func ParseBackground(s string) Background {
	def := Background{Kind: BackgroundSolid, From: "#0f0f13"}
	kind, arg, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return def
	}
	switch BackgroundKind(strings.ToLower(kind)) {
	case BackgroundSolid:
		c := strings.TrimSpace(arg)
		if !validColor(c) {
			return def
		}
		return Background{Kind: BackgroundSolid, From: c}
	case BackgroundGradient:
		parts := splitGradient(arg)
		if len(parts) != 3 {
			return def
		}
		shape := strings.ToLower(parts[0])
		if shape != "linear" && shape != "radial" {
			return def
		}
		if !validColor(parts[1]) || !validColor(parts[2]) {
			return def
		}
		return Background{Kind: BackgroundGradient, Shape: shape, From: parts[1], To: parts[2]}
	case BackgroundImage:
		u, err := source.ParseHTTPURL(arg)
		if err != nil {
			return def
		}
		raw := u.String()
		if strings.ContainsAny(raw, "\"'()\\ \t\n") {
			return def
		}
		return Background{Kind: BackgroundImage, Image: raw}
	}
	return def
}

// splitGradient splits on commas outside parentheses so rgb(...) stops survive.
func splitGradient(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func validColor(c string) bool { return colorRe.MatchString(c) }

// CSS returns the value for a CSS background property. Every component was
// validated by ParseBackground.
func (b Background) CSS() string {
	switch b.Kind {
	case BackgroundGradient:
		if b.Shape == "radial" {
			return fmt.Sprintf("radial-gradient(circle at center, %s, %s)", b.From, b.To)
		}
		return fmt.Sprintf("linear-gradient(135deg, %s, %s)", b.From, b.To)
	case BackgroundImage:
		return fmt.Sprintf("#0f0f13 url(\"%s\") center / cover no-repeat", b.Image)
	default:
		return b.From
	}
}

// String renders b back into option form.
func (b Background) String() string {
	switch b.Kind {
	case BackgroundGradient:
		return fmt.Sprintf("gradient:%s,%s,%s", b.Shape, b.From, b.To)
	case BackgroundImage:
		return "image:" + b.Image
	default:
		return "solid:" + b.From
	}
}

// RawViewerOptions is the wire form of the viewer options, as query
// parameters or a JSON body.
type RawViewerOptions struct {
	PDF     string  `json:"pdf"`
	BG      string  `json:"bg,omitempty"`
	Spread  string  `json:"spread,omitempty"`
	Quality string  `json:"quality,omitempty"`
	WM      string  `json:"wm,omitempty"`
	DPR     float64 `json:"dpr,omitempty"`
	VW      float64 `json:"vw,omitempty"`
	VH      float64 `json:"vh,omitempty"`
}

// ViewerOptions are the validated viewer settings.
type ViewerOptions struct {
	PDF        string
	Background Background
	Spread     layout.Override
	Quality    tier.Tier
	Watermark  string
	Density    float64
	Viewport   layout.Viewport
}

// ParseViewerOptions reads pdf, bg, spread, quality, wm, dpr, vw and vh.
func ParseViewerOptions(q url.Values) ViewerOptions {
	return RawViewerOptions{
		PDF:     q.Get("pdf"),
		BG:      q.Get("bg"),
		Spread:  q.Get("spread"),
		Quality: q.Get("quality"),
		WM:      q.Get("wm"),
		DPR:     parseFloat(q.Get("dpr"), 0),
		VW:      parseFloat(q.Get("vw"), 0),
		VH:      parseFloat(q.Get("vh"), 0),
	}.Parse()
}

// Parse validates r. Malformed values fall back to defaults.
func (r RawViewerOptions) Parse() ViewerOptions {
	return ViewerOptions{
		PDF:        UnwrapProxyURL(r.PDF),
		Background: ParseBackground(r.BG),
		Spread:     layout.ParseOverride(r.Spread),
		Quality:    tier.ParseQuality(r.Quality),
		Watermark:  CleanWatermark(r.WM),
		Density:    tier.ClampDensity(r.DPR),
		Viewport:   layout.Viewport{Width: nonNegative(r.VW), Height: nonNegative(r.VH)},
	}
}

// UnwrapProxyURL turns "/api/proxy?url=<escaped>" back into the upstream URL
// so documents are fetched directly.
func UnwrapProxyURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, proxyPrefix) {
		return s
	}
	rest := s[len(proxyPrefix):]
	if i := strings.Index(rest, "&"); i >= 0 {
		rest = rest[:i]
	}
	if u, err := url.QueryUnescape(rest); err == nil {
		return u
	}
	return rest
}

// CleanWatermark drops control characters and truncates to MaxWatermarkRunes.
func CleanWatermark(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if r := []rune(s); len(r) > MaxWatermarkRunes {
		s = string(r[:MaxWatermarkRunes])
	}
	return strings.TrimSpace(s)
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
