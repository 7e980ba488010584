package tier

import "testing"

func TestTierOrdering(t *testing.T) {
	order := []Tier{None, Preview, Auto, High, Retina}
	for i := 1; i < len(order); i++ {
		if !order[i].Above(order[i-1]) {
			t.Errorf("%v.Above(%v) = false, want true", order[i], order[i-1])
		}
		if order[i-1].AtLeast(order[i]) {
			t.Errorf("%v.AtLeast(%v) = true, want false", order[i-1], order[i])
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"preview", Preview, false},
		{"AUTO", Auto, false},
		{" high ", High, false},
		{"retina", Retina, false},
		{"none", None, true},
		{"ultra", None, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := map[string]Tier{
		"auto":    Auto,
		"high":    High,
		"Retina":  Retina,
		"":        Auto,
		"preview": Auto,
		"bogus":   Auto,
	}
	for in, want := range tests {
		if got := ParseQuality(in); got != want {
			t.Errorf("ParseQuality(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestString(t *testing.T) {
	if got := Retina.String(); got != "retina" {
		t.Errorf("Retina.String() = %q, want retina", got)
	}
	if got := Tier(42).String(); got != "tier(42)" {
		t.Errorf("Tier(42).String() = %q", got)
	}
}
