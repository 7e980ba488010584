package store

import (
	"context"
	"testing"
)

func TestMemoryStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatus()

	if _, ok, err := s.Get(ctx, "a"); ok || err != nil {
		t.Fatalf("Get(missing) = ok %v err %v", ok, err)
	}
	if err := s.Set(ctx, "a", Status{Status: StatusRendering, Generation: 2, Pages: 10, Rendered: 4}); err != nil {
		t.Fatal(err)
	}
	st, ok, err := s.Get(ctx, "a")
	if !ok || err != nil {
		t.Fatalf("Get = ok %v err %v", ok, err)
	}
	if st.Status != StatusRendering || st.Generation != 2 || st.Rendered != 4 {
		t.Errorf("Get = %+v", st)
	}
	if st.Updated.IsZero() {
		t.Error("Updated not stamped")
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("status survived Delete")
	}
}

var _ StatusStore = (*RedisStatus)(nil)
var _ StatusStore = (*MemoryStatus)(nil)
