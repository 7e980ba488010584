package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Pinger models the minimal capability we need for status checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SlotGauge reports rasteriser slot usage.
type SlotGauge interface {
	InUse() int
	Cap() int
}

// Checker aggregates readiness checks for external dependencies.
type Checker struct {
	redis Pinger
	s3    Pinger
	slots SlotGauge
}

// Options configures the Checker. Nil members are reported as not configured
// and do not fail readiness.
type Options struct {
	Redis Pinger
	S3    Pinger
	Slots SlotGauge
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK         bool   `json:"ok"`
	Configured bool   `json:"configured"`
	Message    string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Ready bool   `json:"ready"`
	Redis Status `json:"redis"`
	S3    Status `json:"s3"`
	Slots Status `json:"render_slots"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, s3: opts.S3, slots: opts.Slots}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis: ping(ctx, c.redis, 2*time.Second),
		S3:    ping(ctx, c.s3, 5*time.Second),
		Slots: c.checkSlots(),
	}
	s.Ready = ready(s.Redis) && ready(s.S3)
	return s
}

func ready(s Status) bool { return s.OK || !s.Configured }

func ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Configured: true, Message: trimError(err)}
	}
	return Status{OK: true, Configured: true, Message: "Connected"}
}

func (c *Checker) checkSlots() Status {
	if c.slots == nil {
		return Status{OK: true, Message: "unbounded"}
	}
	return Status{OK: true, Configured: true, Message: fmt.Sprintf("%d/%d in use", c.slots.InUse(), c.slots.Cap())}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
