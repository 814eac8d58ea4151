package multipart

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// FileSource opens path on every render.
func FileSource(path string) OpenFunc {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// BytesSource serves b on every render.
func BytesSource(b []byte) OpenFunc {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// ReaderSource wraps a reader that can only be consumed once. The first open
// hands it out; later opens fail with ErrSourceConsumed. If r is an
// io.Closer it is closed together with the part.
func ReaderSource(r io.Reader) OpenFunc {
	var mu sync.Mutex
	used := false
	return func() (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		if used {
			return nil, ErrSourceConsumed
		}
		used = true
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}
}

// DetectContentType guesses the media type of the file at path. The extension
// is tried first, then the first 512 bytes are sniffed. Anything unknown or
// unreadable is reported as application/octet-stream.
func DetectContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	f, err := os.Open(path)
	if err != nil {
		return DefaultContentType
	}
	defer f.Close()

	var head [512]byte
	n, err := io.ReadFull(f, head[:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return DefaultContentType
	}
	if n == 0 {
		return DefaultContentType
	}
	return http.DetectContentType(head[:n])
}
