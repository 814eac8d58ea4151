// Package multipart encodes multipart/form-data request bodies as a lazy,
// single-pass sequence of byte chunks.
//
// Parts are rendered in insertion order. File contents are pulled from their
// byte source one read buffer at a time, so peak memory does not depend on
// the number or size of the files being sent.
//
// Field names and filenames are written into the Content-Disposition header
// verbatim. Callers must not pass values containing quotes, CR or LF.
package multipart

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DefaultChunkSize is the read buffer used for file part contents.
	DefaultChunkSize = 8192

	// DefaultContentType is used for file parts of unknown type.
	DefaultContentType = "application/octet-stream"
)

// OpenFunc returns a fresh byte source each time a file part is rendered.
type OpenFunc func() (io.ReadCloser, error)

type partKind int

const (
	textPart partKind = iota
	filePart
	finalBoundary
)

type part struct {
	kind        partKind
	name        string
	value       string
	filename    string
	contentType string
	open        OpenFunc
}

// Encoder accumulates form parts and builds the body stream once.
// An Encoder is single-use and must not be shared between goroutines.
type Encoder struct {
	parts     []part
	boundary  string
	chunkSize int
	built     bool
}

// Option configures an Encoder.
type Option func(*Encoder) error

// WithBoundary sets the boundary token instead of a random one.
func WithBoundary(boundary string) Option {
	return func(e *Encoder) error {
		if err := validateBoundary(boundary); err != nil {
			return err
		}
		e.boundary = boundary
		return nil
	}
}

// WithChunkSize sets the maximum size of file data chunks.
func WithChunkSize(size int) Option {
	return func(e *Encoder) error {
		if size <= 0 {
			return errors.Errorf("multipart: invalid chunk size %d", size)
		}
		e.chunkSize = size
		return nil
	}
}

// NewEncoder returns an empty encoder with a random UUID boundary.
func NewEncoder(opts ...Option) (*Encoder, error) {
	e := &Encoder{
		boundary:  uuid.NewString(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Boundary returns the boundary token embedded in the body.
func (e *Encoder) Boundary() string {
	return e.boundary
}

// ContentType returns the value for the outer Content-Type header.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// Len returns the number of parts added so far.
func (e *Encoder) Len() int {
	if e.built {
		return len(e.parts) - 1
	}
	return len(e.parts)
}

// AddText appends a text field.
func (e *Encoder) AddText(name, value string) error {
	if e.built {
		return ErrFinalized
	}
	e.parts = append(e.parts, part{kind: textPart, name: name, value: value})
	return nil
}

// AddFile appends a file part. The open function is called once per render
// and the source it returns is closed before the stream moves past the part.
// An empty contentType is sent as application/octet-stream.
func (e *Encoder) AddFile(name, filename, contentType string, open OpenFunc) error {
	if e.built {
		return ErrFinalized
	}
	if open == nil {
		return errors.Errorf("multipart: nil source for part %q", name)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	e.parts = append(e.parts, part{
		kind:        filePart,
		name:        name,
		filename:    filename,
		contentType: contentType,
		open:        open,
	})
	return nil
}

// AddPath appends the file at path, named after its base name. The content
// type is guessed from the extension or the first bytes of the file.
func (e *Encoder) AddPath(name, path string) error {
	return e.AddFile(name, filepath.Base(path), DetectContentType(path), FileSource(path))
}

// Build finalizes the encoder and returns the body stream.
// It appends the closing boundary after the parts added so far and marks the
// encoder as built, so later AddText, AddFile, AddPath and Build calls return
// ErrFinalized. No byte source is opened here: each file part is opened when
// the stream reaches it and closed once its contents have been emitted.
//
// When nothing was added Build returns ErrEmptyBody and the encoder stays
// usable, so the caller may add parts and try again.
//
// The returned Stream must be drained to io.EOF or closed.
func (e *Encoder) Build() (*Stream, error) {
	if e.built {
		return nil, ErrFinalized
	}
	if len(e.parts) == 0 {
		return nil, ErrEmptyBody
	}
	e.parts = append(e.parts, part{kind: finalBoundary})
	e.built = true
	return newStream(e.parts, e.boundary, e.chunkSize), nil
}

// validateBoundary follows RFC 2046 section 5.1.1.
func validateBoundary(boundary string) error {
	if len(boundary) < 1 || len(boundary) > 70 {
		return errors.New("multipart: invalid boundary length")
	}
	for _, b := range boundary {
		if 'A' <= b && b <= 'Z' || 'a' <= b && b <= 'z' || '0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '\'', '(', ')', '+', '_', ',', '-', '.', '/', ':', '=', '?', ' ':
			continue
		}
		return errors.New("multipart: invalid boundary character")
	}
	if boundary[len(boundary)-1] == ' ' {
		return errors.New("multipart: boundary must not end with a space")
	}
	return nil
}
