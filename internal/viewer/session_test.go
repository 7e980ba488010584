package viewer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/local/flipbook/internal/display"
	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/render/rendertest"
	"github.com/local/flipbook/internal/scheduler"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/store"
	"github.com/local/flipbook/internal/tier"
)

type loaderFunc func(ctx context.Context, ref string) (*source.Document, error)

func (f loaderFunc) Load(ctx context.Context, ref string) (*source.Document, error) {
	return f(ctx, ref)
}

var stubLoader = loaderFunc(func(ctx context.Context, ref string) (*source.Document, error) {
	return &source.Document{Ref: ref, Data: []byte(ref), Fingerprint: "fp-" + ref}, nil
})

var desktopOpts = Options{
	Quality:  tier.High,
	Spread:   layout.OverrideAuto,
	Viewport: layout.Viewport{Width: 1280, Height: 900},
	Density:  1,
}

func testDeps(docs ...*rendertest.Doc) Deps {
	return Deps{
		Loader: stubLoader,
		Opener: rendertest.Opener(docs...),
		Status: store.NewMemoryStatus(),
	}
}

func newTestSession(t *testing.T, deps Deps) *Session {
	t.Helper()
	s, err := NewRegistry(deps, 0, 0).Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func feed(gate chan struct{}, n int) {
	for i := 0; i < n; i++ {
		gate <- struct{}{}
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoadRunsToCompletion(t *testing.T) {
	deps := testDeps(rendertest.New(10))
	s := newTestSession(t, deps)
	defer s.Close()

	sum, err := s.Load(context.Background(), "a.pdf", desktopOpts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sum.Pages != 10 || sum.Generation != 1 || sum.Current != 1 {
		t.Errorf("Summary = %+v", sum)
	}
	if sum.Plan == nil || sum.Plan.Spread != layout.Double {
		t.Errorf("Plan = %+v, want double spread", sum.Plan)
	}
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	sum = s.Summary()
	if sum.Live != 10 || sum.Progress.Phase != scheduler.PhaseDone || sum.Progress.Upgraded != 10 {
		t.Errorf("Summary after run = %+v progress %+v", sum, sum.Progress)
	}
	for p := 1; p <= 10; p++ {
		snap, ok := s.Book().Page(p)
		if !ok || !snap.Live || snap.Bitmap.Tier != tier.High {
			t.Errorf("page %d = %+v", p, snap)
		}
	}
	st, ok, _ := s.Status(context.Background())
	if !ok || st.Status != store.StatusReady || st.Upgraded != 10 || st.Fingerprint != "fp-a.pdf" {
		t.Errorf("stored status = %+v", st)
	}
}

// Navigating to a page that is still a placeholder shows the placeholder, and
// the live image replaces it once that page is rendered.
func TestNavigateAheadOfRendering(t *testing.T) {
	doc := rendertest.New(10)
	gate := make(chan struct{})
	doc.Gate = gate
	s := newTestSession(t, testDeps(doc))
	defer func() {
		s.Close()
		close(gate)
	}()

	go feed(gate, 4)
	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); err != nil {
		t.Fatalf("Load: %v", err)
	}
	events, cancel := s.Book().Subscribe(64)
	defer cancel()

	if got := s.NavigateTo(7); got != 7 {
		t.Fatalf("NavigateTo(7) = %d", got)
	}
	snap, _ := s.Book().Page(7)
	if snap.Live || snap.Bitmap.Page != 4 {
		t.Fatalf("page 7 before render = live %v from page %d, want placeholder of page 4", snap.Live, snap.Bitmap.Page)
	}

	go feed(gate, 3)
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			done = ev.Type == display.EventReplace && ev.Page == 7
		case <-timeout:
			t.Fatal("page 7 never replaced")
		}
	}
	snap, _ = s.Book().Page(7)
	if !snap.Live || snap.Bitmap.Page != 7 || snap.Bitmap.Tier != tier.Preview {
		t.Errorf("page 7 after render = %+v", snap)
	}
	if got := s.Book().Current(); got != 7 {
		t.Errorf("Current() = %d, want 7", got)
	}
}

// A run superseded by a newer load never writes into the book again.
func TestReloadDropsStaleRun(t *testing.T) {
	a := rendertest.New(10)
	gate := make(chan struct{})
	a.Gate = gate
	b := rendertest.New(10)
	for i := range b.Sizes {
		b.Sizes[i] = layout.Size{Width: 800, Height: 400}
	}
	s := newTestSession(t, testDeps(a, b))
	defer s.Close()
	gateOpen := false
	defer func() {
		if !gateOpen {
			close(gate)
		}
	}()

	go feed(gate, 4)
	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); err != nil {
		t.Fatalf("Load a: %v", err)
	}
	aDone := s.Done()
	gate <- struct{}{} // let page 5 through; a then parks on page 6
	waitFor(t, "a parked on page 6", func() bool { return a.Parked() == 1 && len(a.Calls()) == 5 })

	sum, err := s.Load(context.Background(), "b.pdf", desktopOpts)
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}
	if sum.Generation != 2 || sum.Fingerprint != "fp-b.pdf" {
		t.Errorf("Summary = %+v", sum)
	}
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait b: %v", err)
	}

	events, cancel := s.Book().Subscribe(64)
	defer cancel()
	close(gate)
	gateOpen = true
	select {
	case <-aDone:
	case <-time.After(10 * time.Second):
		t.Fatal("superseded run did not stop")
	}

	if ev := <-events; ev.Type != display.EventSnapshot {
		t.Fatalf("first event = %+v, want snapshot", ev)
	}
	select {
	case ev := <-events:
		t.Errorf("book changed after superseded run finished: %+v", ev)
	default:
	}
	if got := s.Summary().StaleDropped; got != 1 {
		t.Errorf("StaleDropped = %d, want 1 (page 6 of the superseded run)", got)
	}
	for p := 1; p <= 10; p++ {
		snap, _ := s.Book().Page(p)
		if bm := snap.Bitmap; bm.Width <= bm.Height {
			t.Errorf("page %d shows a %dx%d image from the superseded document", p, bm.Width, bm.Height)
		}
	}
	if !a.Closed() {
		t.Error("superseded document not closed")
	}
}

func TestLoadErrors(t *testing.T) {
	failing := loaderFunc(func(ctx context.Context, ref string) (*source.Document, error) {
		return nil, &source.StatusError{URL: ref, Status: 404}
	})
	tests := []struct {
		name   string
		deps   Deps
		kind   Kind
		status int
	}{
		{"fetch", Deps{Loader: failing, Opener: rendertest.Opener()}, KindFatalLoad, http.StatusUnprocessableEntity},
		{"open", Deps{Loader: stubLoader, Opener: rendertest.Opener()}, KindFatalLoad, http.StatusUnprocessableEntity},
		{"no pages", Deps{Loader: stubLoader, Opener: rendertest.Opener(rendertest.New(0))}, KindFatalLoad, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.deps.Status = store.NewMemoryStatus()
			s := newTestSession(t, tt.deps)
			defer s.Close()
			_, err := s.Load(context.Background(), "x.pdf", desktopOpts)
			if got := Classify(err); got != tt.kind {
				t.Fatalf("Classify(%v) = %s, want %s", err, got, tt.kind)
			}
			if got := HTTPStatus(err); got != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.status)
			}
			st, ok, _ := s.Status(context.Background())
			if !ok || st.Status != store.StatusFailed {
				t.Errorf("status = %+v, want failed", st)
			}
			if s.Done() != nil {
				t.Error("failed load became the current run")
			}
		})
	}
}

func TestLoadCancelled(t *testing.T) {
	s := newTestSession(t, testDeps(rendertest.New(3)))
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Load(ctx, "a.pdf", desktopOpts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load err = %v, want context.Canceled", err)
	}
	if got := HTTPStatus(err); got != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want 409", got)
	}
}

func TestLoadAfterClose(t *testing.T) {
	s := newTestSession(t, testDeps(rendertest.New(3)))
	s.Close()
	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close = %v, want ErrClosed", err)
	}
}

func TestResizeKeepsSpread(t *testing.T) {
	s := newTestSession(t, testDeps(rendertest.New(4)))
	defer s.Close()
	if _, err := s.Resize(layout.Viewport{Width: 800, Height: 600}); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Resize before load = %v, want ErrNoDocument", err)
	}
	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Book().Stage()
	plan, err := s.Resize(layout.Viewport{Width: 600, Height: 800})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if plan.Spread != layout.Double {
		t.Errorf("spread after narrow resize = %s, want double kept", plan.Spread)
	}
	after, spread := s.Book().Stage()
	if after == before || after != plan.Stage || spread != layout.Double {
		t.Errorf("stage %v -> %v (%s), plan %v", before, after, spread, plan.Stage)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{&LoadError{Ref: "x", Err: errors.New("bad")}, KindFatalLoad},
		{&AdapterInitError{Err: errors.New("no canvas")}, KindAdapterInit},
		{&render.PageRenderError{Page: 3, Err: errors.New("bad stream")}, KindPageRender},
		{ErrSuperseded, KindCancelled},
		{context.Canceled, KindCancelled},
		{ErrNotFound, KindNotFound},
		{ErrTooManySessions, KindLimit},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if got := HTTPStatus(&AdapterInitError{Err: errors.New("x")}); got != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus(AdapterInitError) = %d, want 503", got)
	}
	tooBig := &LoadError{Ref: "x", Err: &source.TooLargeError{Limit: 10}}
	if got := HTTPStatus(tooBig); got != http.StatusRequestEntityTooLarge {
		t.Errorf("HTTPStatus(too large) = %d, want 413", got)
	}
}

func TestStateFollowsBook(t *testing.T) {
	s := newTestSession(t, testDeps(rendertest.New(8)))
	defer s.Close()
	if st := s.State(); st.Page != 0 || st.Zoom != MinZoom || st.Spread != "" {
		t.Errorf("State before load = %+v", st)
	}
	if _, err := s.Load(context.Background(), "a.pdf", desktopOpts); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st := s.State(); st.Page != 1 || st.Spread != layout.Double {
		t.Errorf("State after load = %+v", st)
	}
	s.Book().NavigateTo(6)
	s.ZoomIn()
	if st := s.State(); st.Page != 6 || st.Zoom != 1.15 {
		t.Errorf("State after navigation = %+v", st)
	}
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}
