package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllowBounds(t *testing.T) {
	s := New(2)
	r1, ok1 := s.Allow()
	r2, ok2 := s.Allow()
	_, ok3 := s.Allow()
	if !ok1 || !ok2 || ok3 {
		t.Fatalf("Allow = %v %v %v, want true true false", ok1, ok2, ok3)
	}
	if s.InUse() != 2 {
		t.Errorf("InUse = %d, want 2", s.InUse())
	}
	r1()
	r1()
	if s.InUse() != 1 {
		t.Errorf("InUse after double release = %d, want 1", s.InUse())
	}
	r2()
}

func TestAcquireHonoursContext(t *testing.T) {
	s := New(1)
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire on full slots = %v, want deadline exceeded", err)
	}
}

func TestNilSlotsNeverBlock(t *testing.T) {
	var s *Slots
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("nil Acquire: %v", err)
	}
	release()
	if _, ok := s.Allow(); !ok {
		t.Error("nil Allow = false")
	}
}
