// Package source fetches document bytes from http(s), S3 or the local
// filesystem and checks that they are a PDF.
package source

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/local/flipbook/internal/metrics"
)

const pdfMIME = "application/pdf"

var (
	ErrNotPDF  = errors.New("not a pdf document")
	ErrNoS3    = errors.New("s3 sources are not configured")
	ErrNoFiles = errors.New("local file sources are disabled")
	ErrEmpty   = errors.New("empty document")
)

// TooLargeError reports a document above the configured size cap.
type TooLargeError struct {
	Limit int64
	Size  int64
}

func (e *TooLargeError) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("document of %d bytes exceeds limit of %d", e.Size, e.Limit)
	}
	return fmt.Sprintf("document exceeds limit of %d bytes", e.Limit)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status) }

// Document is a fetched and checked source.
type Document struct {
	Ref         string
	Data        []byte
	MIME        string
	Fingerprint string
	// Pages is the page count reported by the structural check, 0 when the
	// check failed.
	Pages int
}

// Config tunes a Loader.
type Config struct {
	MaxBytes   int64
	Timeout    time.Duration
	AllowFiles bool
}

// Loader resolves document references.
type Loader struct {
	cfg  Config
	http *http.Client
	s3   *S3Client
}

// NewLoader creates a loader. s3 may be nil.
func NewLoader(cfg Config, client *http.Client, s3 *S3Client) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	return &Loader{cfg: cfg, http: client, s3: s3}
}

// Load fetches ref, checks it and fingerprints it. Supported forms are
// http(s)://, s3://bucket/key, file://path and bare paths.
func (l *Loader) Load(ctx context.Context, ref string) (*Document, error) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return nil, ErrMissingURL
	}

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	scheme := schemeOf(ref)
	start := time.Now()
	data, err := l.fetch(ctx, scheme, ref)
	if err != nil {
		metrics.ObserveFetch(scheme, "error", 0)
		return nil, err
	}
	doc, err := Check(data)
	if err != nil {
		metrics.ObserveFetch(scheme, "rejected", int64(len(data)))
		return nil, err
	}
	doc.Ref = ref
	metrics.ObserveFetch(scheme, "ok", int64(len(data)))
	log.Info().
		Str("scheme", scheme).
		Int("size", len(data)).
		Str("fingerprint", doc.Fingerprint).
		Int("checked_pages", doc.Pages).
		Dur("dur", time.Since(start)).
		Msg("document fetched")
	return doc, nil
}

func (l *Loader) fetch(ctx context.Context, scheme, ref string) ([]byte, error) {
	switch scheme {
	case "http", "https":
		return l.fetchHTTP(ctx, ref)
	case "s3":
		if l.s3 == nil {
			return nil, ErrNoS3
		}
		bucket, key, ok := splitS3(ref)
		if !ok {
			return nil, fmt.Errorf("invalid s3 url: %s", ref)
		}
		return l.s3.Download(ctx, bucket, key, l.cfg.MaxBytes)
	case "file":
		if !l.cfg.AllowFiles {
			return nil, ErrNoFiles
		}
		return l.readFile(strings.TrimPrefix(ref, "file://"))
	default:
		return nil, ErrScheme
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	u, err := ParseHTTPURL(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.Redacted(), Status: resp.StatusCode}
	}
	if l.cfg.MaxBytes > 0 && resp.ContentLength > l.cfg.MaxBytes {
		return nil, &TooLargeError{Limit: l.cfg.MaxBytes, Size: resp.ContentLength}
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	if l.cfg.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, &TooLargeError{Limit: l.cfg.MaxBytes}
	}
	return data, nil
}

// Check sniffs data as a PDF, fingerprints it and checks its structure. A
// failed check is only logged since the rasteriser tolerates more damage than
// the validator.
func Check(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	mt := mimetype.Detect(data)
	if !mt.Is(pdfMIME) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotPDF, mt.String())
	}
	doc := &Document{Data: data, MIME: pdfMIME, Fingerprint: Fingerprint(data)}
	n, err := Inspect(data)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", doc.Fingerprint).Msg("pdf structure check failed; continuing")
	}
	doc.Pages = n
	return doc, nil
}

// Inspect returns the page count as seen by the structural validator.
func Inspect(data []byte) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("pdf inspect panic: %v", p)
		}
	}()
	n, err = api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Fingerprint is the hex BLAKE2b-256 of data.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func schemeOf(ref string) string {
	i := strings.Index(ref, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(ref[:i])
}
