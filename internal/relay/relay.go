// Package relay implements the CORS-friendly document passthrough used by the
// browser viewer.
package relay

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/source"
)

const (
	defaultFileName = "document.pdf"
	defaultType     = "application/pdf"
	sniffLen        = 3072
)

// Handler serves GET /api/proxy?url=<u>[&dl=1].
type Handler struct {
	client *http.Client
}

// New returns a relay using client for upstream requests.
func New(client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Handler{client: client}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := h.serve(w, r)
	metrics.ObserveRelay(code, time.Since(start))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) int {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	default:
		return plain(w, http.StatusMethodNotAllowed, "Method not allowed")
	}

	q := r.URL.Query()
	raw := q.Get("url")
	if raw == "" {
		return plain(w, http.StatusBadRequest, "Missing ?url=")
	}
	u, err := source.ParseHTTPURL(raw)
	if err != nil {
		return plain(w, http.StatusBadRequest, "Invalid protocol")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return plain(w, http.StatusInternalServerError, "Proxy error")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("host", u.Host).Msg("relay upstream request failed")
		return plain(w, http.StatusInternalServerError, "Proxy error")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().Int("status", resp.StatusCode).Str("host", u.Host).Msg("relay upstream non-2xx")
		return plain(w, resp.StatusCode, fmt.Sprintf("Upstream %d", resp.StatusCode))
	}

	body := bufio.NewReaderSize(resp.Body, sniffLen)
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		head, _ := body.Peek(sniffLen)
		ct = sniff(head)
	}

	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Cache-Control", "s-maxage=3600, stale-while-revalidate")
	hdr.Set("Content-Type", ct)
	if resp.ContentLength >= 0 {
		hdr.Set("Content-Length", fmt.Sprint(resp.ContentLength))
	}
	if q.Get("dl") != "" {
		hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", safeFileName(source.FileName(u, defaultFileName))))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return http.StatusOK
	}
	n, err := io.Copy(w, body)
	if err != nil {
		log.Warn().Err(err).Str("host", u.Host).Int64("bytes", n).Msg("relay copy interrupted")
	}
	return http.StatusOK
}

// sniff detects the type of head, defaulting to a PDF.
func sniff(head []byte) string {
	if len(head) == 0 {
		return defaultType
	}
	mt := mimetype.Detect(head)
	if mt.Is("application/octet-stream") || mt.Is("text/plain") {
		return defaultType
	}
	return mt.String()
}

func safeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return defaultFileName
	}
	return name
}

func plain(w http.ResponseWriter, code int, msg string) int {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, msg)
	return code
}
