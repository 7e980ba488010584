// Package server exposes viewer sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/display"
	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/statuscheck"
	"github.com/local/flipbook/internal/store"
	"github.com/local/flipbook/internal/viewer"
)

const (
	maxBody        = 1 << 20
	eventBuffer    = 64
	heartbeatEvery = 15 * time.Second
)

var errMissingPDF = errors.New("missing pdf")

// Registry is the session store the handlers work against.
type Registry interface {
	Create() (*viewer.Session, error)
	Get(id string) (*viewer.Session, error)
	Remove(id string) error
}

type Dependencies struct {
	Registry Registry
	Relay    http.Handler
	Checker  *statuscheck.Checker
	Metrics  http.Handler
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("POST /sessions", s.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("PUT /sessions/{id}/document", s.handleDocument)
	mux.HandleFunc("GET /sessions/{id}/pages/{n}", s.handlePage)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /sessions/{id}/navigate", s.handleNavigate)
	mux.HandleFunc("POST /sessions/{id}/flip", s.handleFlip)
	mux.HandleFunc("POST /sessions/{id}/zoom", s.handleZoom)
	mux.HandleFunc("POST /sessions/{id}/resize", s.handleResize)
	if s.deps.Relay != nil {
		mux.Handle("/api/proxy", s.deps.Relay)
	}
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	} else {
		mux.Handle("GET /metrics", metrics.Handler())
	}
}

// sessionView is the GET /sessions/{id} body: the live summary plus the last
// stored progress record.
type sessionView struct {
	viewer.Summary
	Status *store.Status `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := viewer.HTTPStatus(err)
	if code == http.StatusOK {
		code = http.StatusInternalServerError
	}
	if errors.Is(err, errMissingPDF) {
		code = http.StatusBadRequest
	}
	http.Error(w, err.Error(), code)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func viewerOptions(o config.ViewerOptions) viewer.Options {
	return viewer.Options{
		Quality:   o.Quality,
		Spread:    o.Spread,
		Watermark: o.Watermark,
		Viewport:  o.Viewport,
		Density:   o.Density,
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*viewer.Session, bool) {
	sess, err := s.deps.Registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeJSON(w, http.StatusOK, statuscheck.Summary{Ready: true})
		return
	}
	sum := s.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var raw config.RawViewerOptions
	if !decode(w, r, &raw) {
		return
	}
	opts := raw.Parse()
	if opts.PDF == "" {
		writeError(w, errMissingPDF)
		return
	}

	sess, err := s.deps.Registry.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	sum, err := sess.Load(r.Context(), opts.PDF, viewerOptions(opts))
	if err != nil {
		_ = s.deps.Registry.Remove(sess.ID)
		writeError(w, err)
		return
	}
	log.Info().Str("session", sess.ID).Str("ref", opts.PDF).Int("pages", sum.Pages).Msg("session opened")
	w.Header().Set("Location", "/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var raw config.RawViewerOptions
	if !decode(w, r, &raw) {
		return
	}
	opts := raw.Parse()
	if opts.PDF == "" {
		writeError(w, errMissingPDF)
		return
	}
	sum, err := sess.Load(r.Context(), opts.PDF, viewerOptions(opts))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	view := sessionView{Summary: sess.Summary()}
	st, found, err := sess.Status(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("status lookup failed")
	} else if found {
		view.Status = &st
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	snap, ok := sess.Book().Page(n)
	if !ok {
		http.Error(w, "page not available", http.StatusNotFound)
		return
	}

	data := snap.Bitmap.Data
	if r.URL.Query().Get("thumb") != "" {
		data = snap.Bitmap.Thumb
	}
	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	h.Set("ETag", fmt.Sprintf(`"%d"`, snap.Version))
	h.Set("X-Page-Tier", snap.Bitmap.Tier.String())
	h.Set("X-Page-Source", strconv.Itoa(snap.Bitmap.Page))
	h.Set("X-Page-Live", strconv.FormatBool(snap.Live))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

// handleEvents streams book changes as server-sent events. A "done" event is
// sent once the current run finishes its background passes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := sess.Book().Subscribe(eventBuffer)
	defer cancel()
	done := sess.Done()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			sess.Touch()
		case <-done:
			done = nil
			if _, err := fmt.Fprintf(w, "event: done\ndata: {}\n\n"); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev display.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Version, b)
	return err
}

type navigateReq struct {
	Page int `json:"page"`
}

type flipReq struct {
	Dir string `json:"dir"`
}

type zoomReq struct {
	Step string   `json:"step"`
	Zoom *float64 `json:"zoom"`
}

type resizeReq struct {
	VW float64 `json:"vw"`
	VH float64 `json:"vh"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req navigateReq
	if !decode(w, r, &req) {
		return
	}
	if !sess.Book().Ready() {
		writeError(w, viewer.ErrNoDocument)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"current": sess.NavigateTo(req.Page)})
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req flipReq
	if !decode(w, r, &req) {
		return
	}
	if !sess.Book().Ready() {
		writeError(w, viewer.ErrNoDocument)
		return
	}
	var cur int
	switch req.Dir {
	case "next":
		cur = sess.FlipNext()
	case "prev":
		cur = sess.FlipPrev()
	default:
		http.Error(w, "dir must be next or prev", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"current": cur})
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req zoomReq
	if !decode(w, r, &req) {
		return
	}
	var z float64
	switch {
	case req.Zoom != nil:
		z = sess.SetZoom(*req.Zoom)
	case req.Step == "in":
		z = sess.ZoomIn()
	case req.Step == "out":
		z = sess.ZoomOut()
	default:
		http.Error(w, "step must be in or out", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": z})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req resizeReq
	if !decode(w, r, &req) {
		return
	}
	plan, err := sess.Resize(layout.Viewport{Width: req.VW, Height: req.VH})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Shutdown closes every session of reg when it supports it.
func Shutdown(ctx context.Context, reg interface{ CloseAll() }) {
	done := make(chan struct{})
	go func() { reg.CloseAll(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("session shutdown timed out")
	}
}
