package tier

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		tier     Tier
		density  float64
		viewport float64
		target   float64
		want     int
	}{
		{"preview ignores density", Preview, 3, 1440, 700, 700},
		{"auto low density", Auto, 1, 1440, 700, 840},
		{"auto high density", Auto, 2, 1440, 700, 1050},
		{"high floor", High, 1, 1440, 700, 1120},
		{"high density wins", High, 2.5, 1440, 700, 1750},
		{"retina floor", Retina, 1, 1440, 700, 1400},
		{"retina density", Retina, 2, 1440, 700, 2100},
		{"density clamped to 3", Retina, 5, 1440, 100, 450},
		{"zero density treated as 1", Auto, 0, 1440, 100, 120},
		{"wide fallback", Preview, 1, 1440, 0, 1200},
		{"narrow fallback", Preview, 1, 390, 0, 800},
		{"floors fraction", Auto, 1, 1440, 333, 399},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.tier, tt.density, tt.viewport, tt.target)
			if got != tt.want {
				t.Errorf("Resolve(%v, %v, %v, %v) = %d, want %d", tt.tier, tt.density, tt.viewport, tt.target, got, tt.want)
			}
		})
	}
}

func TestPolicyResolveMatchesFunction(t *testing.T) {
	p := Policy{Density: 2, ViewportWidth: 1280}
	if got, want := p.Resolve(High, 600), Resolve(High, 2, 1280, 600); got != want {
		t.Errorf("Policy.Resolve = %d, want %d", got, want)
	}
}

func TestPreviewScale(t *testing.T) {
	tests := []struct {
		pages int
		want  float64
	}{
		{1, 1.0},
		{24, 1.0},
		{25, 0.85},
		{48, 0.85},
		{49, 0.75},
		{60, 0.75},
	}
	for _, tt := range tests {
		if got := PreviewScale(tt.pages); got != tt.want {
			t.Errorf("PreviewScale(%d) = %v, want %v", tt.pages, got, tt.want)
		}
	}
}
