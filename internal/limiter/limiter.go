// Package limiter bounds how many page rasterisations run at once across all
// sessions of the process.
package limiter

import (
	"context"
)

// Slots is a counting semaphore. A nil *Slots never blocks.
type Slots struct {
	sem chan struct{}
}

// New creates n slots; n <= 0 defaults to 2.
func New(n int) *Slots {
	if n <= 0 {
		n = 2
	}
	return &Slots{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
// The returned release function must be called exactly once.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	if s == nil {
		return func() {}, nil
	}
	select {
	case s.sem <- struct{}{}:
		return s.releaser(), nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// Allow tries to reserve a slot without blocking.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (s *Slots) Allow() (func(), bool) {
	if s == nil {
		return func() {}, true
	}
	select {
	case s.sem <- struct{}{}:
		return s.releaser(), true
	default:
		return func() {}, false
	}
}

// InUse returns the number of held slots.
func (s *Slots) InUse() int {
	if s == nil {
		return 0
	}
	return len(s.sem)
}

// Cap returns the number of slots.
func (s *Slots) Cap() int {
	if s == nil {
		return 0
	}
	return cap(s.sem)
}

func (s *Slots) releaser() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		<-s.sem
	}
}
