package multipart

import (
	"io"
	"iter"
	"sync"
)

// phase is the position inside a file part.
type phase int

const (
	phaseHeader phase = iota
	phaseData
	phaseTrailer
)

// maxEmptyReads bounds consecutive (0, nil) reads from a source, like bufio.
const maxEmptyReads = 100

// Stream is the encoded body. Each call to Next produces the following chunk;
// the sequence cannot be restarted. A Stream must be closed if it is
// abandoned before io.EOF, so that an in-flight source is released.
//
// Chunks must be pulled from one goroutine at a time. Close and Emitted may
// be called from another goroutine, such as an HTTP transport aborting the
// upload; Close waits for a pending source read to return.
type Stream struct {
	mu sync.Mutex

	parts    []part
	boundary string

	index int
	phase phase
	src   io.ReadCloser
	buf   []byte

	pending []byte
	emitted int64
	err     error
	closed  bool
}

func newStream(parts []part, boundary string, chunkSize int) *Stream {
	return &Stream{
		parts:    parts,
		boundary: boundary,
		buf:      make([]byte, chunkSize),
	}
}

// Boundary returns the boundary token used in the body.
func (s *Stream) Boundary() string {
	return s.boundary
}

// Emitted returns the number of body bytes produced so far.
func (s *Stream) Emitted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Next returns the next chunk of the body, or io.EOF after the closing
// boundary. Resource errors are returned by the pull that hit them and are
// repeated on every later call.
func (s *Stream) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Stream) next() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.index >= len(s.parts) {
		return nil, io.EOF
	}
	chunk, err := s.advance()
	if err != nil {
		s.err = err
		return nil, err
	}
	s.emitted += int64(len(chunk))
	return chunk, nil
}

func (s *Stream) advance() ([]byte, error) {
	p := &s.parts[s.index]
	switch p.kind {
	case textPart:
		s.index++
		return []byte("--" + s.boundary + "\r\n" +
			"Content-Disposition: form-data; name=" + p.name + "\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			p.value + "\r\n"), nil
	case finalBoundary:
		s.index++
		return []byte("--" + s.boundary + "--"), nil
	case filePart:
		return s.advanceFile(p)
	}
	panic("multipart: unknown part kind")
}

func (s *Stream) advanceFile(p *part) ([]byte, error) {
	switch s.phase {
	case phaseHeader:
		src, err := p.open()
		if err != nil {
			return nil, &ResourceOpenError{Name: p.name, Err: err}
		}
		if src == nil {
			return nil, &ResourceOpenError{Name: p.name, Err: errNilSource}
		}
		s.src = src
		s.phase = phaseData
		return []byte("--" + s.boundary + "\r\n" +
			"Content-Disposition: form-data; name=" + p.name + "; filename=" + p.filename + "\r\n" +
			"Content-Type: " + p.contentType + "\r\n\r\n"), nil

	case phaseData:
		for empty := 0; ; {
			n, err := s.src.Read(s.buf)
			if err != nil && err != io.EOF {
				s.release()
				return nil, &ResourceReadError{Name: p.name, Err: err}
			}
			if err == io.EOF {
				s.phase = phaseTrailer
			}
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, s.buf[:n])
				return chunk, nil
			}
			if err == io.EOF {
				return s.advanceFile(p)
			}
			if empty++; empty >= maxEmptyReads {
				s.release()
				return nil, &ResourceReadError{Name: p.name, Err: errNoProgress}
			}
		}

	case phaseTrailer:
		err := s.src.Close()
		s.src = nil
		if err != nil {
			return nil, &ResourceReadError{Name: p.name, Err: err}
		}
		s.phase = phaseHeader
		s.index++
		return []byte("\r\n"), nil
	}
	panic("multipart: unknown file phase")
}

// release closes the in-flight source, ignoring its error.
func (s *Stream) release() {
	if s.src != nil {
		_ = s.src.Close()
		s.src = nil
	}
}

// Read implements io.Reader over the chunk sequence so the stream can be
// used as an http.Request body.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		chunk, err := s.next()
		if err != nil {
			return 0, err
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close releases the in-flight source, if any. It is safe to call more than
// once and after io.EOF.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	return err
}

// All ranges over the remaining chunks. A read error is yielded once and ends
// the sequence. The stream is closed when the loop ends, including on break.
func (s *Stream) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
