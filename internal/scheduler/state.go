package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/local/flipbook/internal/tier"
)

// PageState tracks where a page is in the progressive sequence.
type PageState int

const (
	NotRendered PageState = iota
	Placeholder
	PreviewRendered
	Upgraded
	Cancelled
)

func (s PageState) String() string {
	switch s {
	case NotRendered:
		return "not_rendered"
	case Placeholder:
		return "placeholder"
	case PreviewRendered:
		return "preview"
	case Upgraded:
		return "upgraded"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Phase names a step of the sequence.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseBoot       Phase = "boot"
	PhaseBackground Phase = "background"
	PhaseUpgrade    Phase = "upgrade"
	PhaseDone       Phase = "done"
	PhaseCancelled  Phase = "cancelled"
)

// Snapshot summarises progress for status reporting.
type Snapshot struct {
	Phase    Phase     `json:"phase"`
	Pages    int       `json:"pages"`
	Rendered int       `json:"rendered"`
	Upgraded int       `json:"upgraded"`
	Failed   int       `json:"failed"`
	Quality  tier.Tier `json:"-"`
}

// YieldFunc hands control back between pages. It returns ctx.Err() when the
// run was cancelled.
type YieldFunc func(ctx context.Context) error

// Pause yields the processor and then waits d, or less if ctx ends first.
func Pause(d time.Duration) YieldFunc {
	return func(ctx context.Context) error {
		runtime.Gosched()
		if d <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}
