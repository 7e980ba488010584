// Package tier defines render quality tiers and the policy that maps a tier
// to a target raster width.
package tier

import (
	"fmt"
	"strings"
)

// Tier is a named quality level. Values are ordered by intended sharpness.
type Tier int8

const (
	// None means nothing has been rendered yet.
	None Tier = iota
	Preview
	Auto
	High
	Retina
)

var names = [...]string{"none", "preview", "auto", "high", "retina"}

func (t Tier) String() string {
	if t < None || int(t) >= len(names) {
		return fmt.Sprintf("tier(%d)", int8(t))
	}
	return names[t]
}

// Valid reports whether t is one of the renderable tiers.
func (t Tier) Valid() bool { return t >= Preview && t <= Retina }

// Above reports whether t is strictly sharper than o.
func (t Tier) Above(o Tier) bool { return t > o }

// AtLeast reports whether t is as sharp as o or sharper.
func (t Tier) AtLeast(o Tier) bool { return t >= o }

// Parse maps a tier name to a Tier. Matching is case-insensitive.
func Parse(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == v && Tier(i).Valid() {
			return Tier(i), nil
		}
	}
	return None, fmt.Errorf("unknown tier %q", s)
}

// ParseQuality maps a quality preference (auto|high|retina) to the tier used
// by the upgrade pass. Anything else yields Auto.
func ParseQuality(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High
	case "retina":
		return Retina
	default:
		return Auto
	}
}
