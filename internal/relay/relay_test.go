package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

var pdfBody = []byte("%PDF-1.7\n%fake\n")

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/report.pdf":
			w.Header().Set("Content-Type", "application/x-pdf")
			w.Write(pdfBody)
		case "/untyped":
			w.Header()["Content-Type"] = nil
			w.Write(pdfBody)
		case "/":
			w.Header()["Content-Type"] = nil
			w.Write([]byte{0x00, 0x01, 0x02})
		case "/gone":
			http.Error(w, "nope", http.StatusGone)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, h http.Handler, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/proxy"+target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRelayErrors(t *testing.T) {
	srv := upstream(t)
	h := New(srv.Client())
	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"missing", "", http.StatusBadRequest, "Missing ?url="},
		{"empty", "?url=", http.StatusBadRequest, "Missing ?url="},
		{"scheme", "?url=" + url.QueryEscape("ftp://x.test/a.pdf"), http.StatusBadRequest, "Invalid protocol"},
		{"upstream 404", "?url=" + url.QueryEscape(srv.URL+"/missing"), http.StatusNotFound, "Upstream 404"},
		{"upstream 410", "?url=" + url.QueryEscape(srv.URL+"/gone"), http.StatusGone, "Upstream 410"},
		{"unreachable", "?url=" + url.QueryEscape("http://127.0.0.1:1/x.pdf"), http.StatusInternalServerError, "Proxy error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, h, tt.query)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := body(t, resp); got != tt.body {
				t.Errorf("body = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestRelaySuccess(t *testing.T) {
	srv := upstream(t)
	h := New(srv.Client())

	resp := get(t, h, "?url="+url.QueryEscape(srv.URL+"/files/report.pdf")+"&dl=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := body(t, resp); got != string(pdfBody) {
		t.Errorf("body = %q", got)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin": "*",
		"Cache-Control":               "s-maxage=3600, stale-while-revalidate",
		"Content-Type":                "application/x-pdf",
		"Content-Disposition":         `attachment; filename="report.pdf"`,
	}
	for k, v := range want {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestRelayContentTypeFallback(t *testing.T) {
	srv := upstream(t)
	h := New(srv.Client())

	resp := get(t, h, "?url="+url.QueryEscape(srv.URL+"/untyped"))
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("sniffed Content-Type = %q, want application/pdf", got)
	}
	if got := resp.Header.Get("Content-Disposition"); got != "" {
		t.Errorf("Content-Disposition without dl = %q", got)
	}
	resp = get(t, h, "?url="+url.QueryEscape(srv.URL+"/untyped")+"&dl=")
	if got := resp.Header.Get("Content-Disposition"); got != "" {
		t.Errorf("Content-Disposition with empty dl = %q", got)
	}

	resp = get(t, h, "?url="+url.QueryEscape(srv.URL+"/")+"&dl=1")
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("unknown bytes Content-Type = %q, want application/pdf", got)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="document.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a.pdf", "a.pdf"},
		{`we"ird\.pdf`, "weird.pdf"},
		{"\x00", "document.pdf"},
	}
	for _, tt := range tests {
		if got := safeFileName(tt.in); got != tt.want {
			t.Errorf("safeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
