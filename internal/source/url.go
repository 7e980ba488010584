package source

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrMissingURL is returned for an empty reference.
	ErrMissingURL = errors.New("missing url")
	// ErrScheme is returned when a URL is not http or https.
	ErrScheme = errors.New("invalid protocol")
)

// ParseHTTPURL accepts only absolute http(s) URLs with a host.
func ParseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrScheme
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrScheme
	}
	if u.Host == "" {
		return nil, ErrScheme
	}
	return u, nil
}

// FileName returns the last path segment of u, or fallback when empty.
func FileName(u *url.URL, fallback string) string {
	p := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return fallback
	}
	return p
}

// splitS3 parses s3://bucket/key.
func splitS3(ref string) (bucket, key string, ok bool) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", false
	}
	return path[:slash], path[slash+1:], true
}
