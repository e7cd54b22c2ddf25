package fetcher

import (
	"context"
	"errors"
	"net"
	"time"
)

// Page is a loaded remote document. Absent elements are reported through the
// bool result, never as errors.
type Page interface {
	// WaitForReady blocks until the document body is present or timeout elapses.
	WaitForReady(ctx context.Context, timeout time.Duration) error
	// FindText returns the text of the first element whose own text contains pattern.
	FindText(pattern string) (string, bool)
	// FindByID returns the text of the element with the given id.
	FindByID(id string) (string, bool)
	// FindSelector returns attr of the first match for selector, or its text when attr is empty.
	FindSelector(selector, attr string) (string, bool)
}

// Accessor loads pages. An Accessor is owned by a single worker and is not
// required to be safe for concurrent use.
type Accessor interface {
	Load(ctx context.Context, url string) (Page, error)
	Close() error
}

// AccessorFactory hands out one Accessor per worker.
type AccessorFactory func(ctx context.Context) (Accessor, error)

// ErrTimeout marks a page that did not become ready in time.
var ErrTimeout = errors.New("page timeout")

// IsTimeout reports whether err is a timeout-class failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
