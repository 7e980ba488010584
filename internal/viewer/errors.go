package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/source"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
	ErrClosed          = errors.New("session closed")
	ErrNoDocument      = errors.New("no document loaded")
	// ErrSuperseded is returned to a load, and to its display writes, once a
	// newer load on the same session has started.
	ErrSuperseded = errors.New("superseded by a newer document")
)

// LoadError means the document could not be fetched, opened or laid out.
type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Ref, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// AdapterInitError means the display could not be initialised with the boot
// images.
type AdapterInitError struct {
	Err error
}

func (e *AdapterInitError) Error() string { return fmt.Sprintf("display init: %v", e.Err) }
func (e *AdapterInitError) Unwrap() error { return e.Err }

// Kind is the error class used for status codes and metrics.
type Kind int

const (
	KindNone Kind = iota
	KindFatalLoad
	KindAdapterInit
	KindPageRender
	KindCancelled
	KindNotFound
	KindLimit
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindFatalLoad:
		return "fatal_load"
	case KindAdapterInit:
		return "adapter_init"
	case KindPageRender:
		return "page_render"
	case KindCancelled:
		return "cancelled"
	case KindNotFound:
		return "not_found"
	case KindLimit:
		return "limit"
	}
	return "internal"
}

// Classify maps err to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return KindFatalLoad
	}
	var initErr *AdapterInitError
	if errors.As(err, &initErr) {
		return KindAdapterInit
	}
	var pageErr *render.PageRenderError
	if errors.As(err, &pageErr) {
		return KindPageRender
	}
	switch {
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrClosed), errors.Is(err, ErrNoDocument):
		return KindNotFound
	case errors.Is(err, ErrTooManySessions):
		return KindLimit
	}
	return KindInternal
}

// HTTPStatus returns the response code for err.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case KindNone:
		return http.StatusOK
	case KindFatalLoad:
		var tl *source.TooLargeError
		if errors.As(err, &tl) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case KindAdapterInit:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
