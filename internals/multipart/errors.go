package multipart

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyBody is returned by Build when no part was added.
	ErrEmptyBody = errors.New("multipart: must have at least one part to build multipart message")

	// ErrFinalized is returned when the encoder is used after Build.
	ErrFinalized = errors.New("multipart: encoder already built")

	// ErrClosed is returned by Next and Read after Close.
	ErrClosed = errors.New("multipart: stream closed")

	// ErrSourceConsumed is returned by a one-shot source opened a second time.
	ErrSourceConsumed = errors.New("multipart: one-shot source already consumed")

	errNoProgress = errors.New("multipart: source returned no data and no error")
	errNilSource  = errors.New("multipart: source factory returned nil")
)

// ResourceOpenError reports a byte source factory that failed for a file part.
type ResourceOpenError struct {
	Name string
	Err  error
}

func (e *ResourceOpenError) Error() string {
	return fmt.Sprintf("multipart: open part %q: %v", e.Name, e.Err)
}

func (e *ResourceOpenError) Unwrap() error { return e.Err }

// ResourceReadError reports a read or close failure while streaming a file part.
type ResourceReadError struct {
	Name string
	Err  error
}

func (e *ResourceReadError) Error() string {
	return fmt.Sprintf("multipart: read part %q: %v", e.Name, e.Err)
}

func (e *ResourceReadError) Unwrap() error { return e.Err }
