package telex

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutuna/telex/internals/multipart"
)

// receivedPart is what the fake Bot API server saw for one part.
type receivedPart struct {
	Name        string
	Filename    string
	ContentType string
	Content     string
}

// botServer records every multipart request and answers {"ok":true}.
type botServer struct {
	*httptest.Server
	paths        []string
	contentTypes []string
	parts        [][]receivedPart
	bodySizes    []int64
}

type countingBody struct {
	io.ReadCloser
	n int64
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.paths = append(s.paths, r.URL.Path)
		s.contentTypes = append(s.contentTypes, r.Header.Get("Content-Type"))
		body := &countingBody{ReadCloser: r.Body}
		r.Body = body
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var got []receivedPart
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			content, _ := io.ReadAll(p)
			got = append(got, receivedPart{
				Name:        p.FormName(),
				Filename:    p.FileName(),
				ContentType: p.Header.Get("Content-Type"),
				Content:     string(content),
			})
		}
		_, _ = io.Copy(io.Discard, body)
		s.parts = append(s.parts, got)
		s.bodySizes = append(s.bodySizes, body.n)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestNew_MissingToken(t *testing.T) {
	c, err := New("")
	assert.Nil(t, c)
	assert.Equal(t, ErrMissingToken, err)
}

func TestEndpointAndFileURL(t *testing.T) {
	c, err := New("123:abc")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/bot123:abc/sendMessage", c.Endpoint("sendMessage"))
	assert.Equal(t, "https://api.telegram.org/file/bot123:abc/documents/file_1.pdf", c.FileURL("documents/file_1.pdf"))

	c, err = New("t", WithBaseURL("http://localhost:8081/"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/bott/getMe", c.Endpoint("getMe"))
}

func TestDo_StreamsMultipart(t *testing.T) {
	srv := newBotServer(t)
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	c, err := New("TOKEN", WithBaseURL(srv.URL), WithChunkSize(2))
	require.NoError(t, err)

	payload := Payload{}.
		With("chat_id", int64(1234)).
		With("caption", "weekly report").
		With("document", Path(path))

	resp, err := c.Do(context.Background(), "sendDocument", payload)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, 3, resp.Parts)
	assert.Equal(t, "sendDocument", resp.Method)
	require.Len(t, srv.bodySizes, 1)
	assert.Equal(t, srv.bodySizes[0], resp.BodyBytes, "a fully read body is counted exactly")

	require.Len(t, srv.paths, 1)
	assert.Equal(t, "/botTOKEN/sendDocument", srv.paths[0])

	mediaType, params, err := mime.ParseMediaType(srv.contentTypes[0])
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Equal(t, resp.Boundary, params["boundary"])

	assert.Equal(t, []receivedPart{
		{Name: "chat_id", ContentType: "text/plain; charset=UTF-8", Content: "1234"},
		{Name: "caption", ContentType: "text/plain; charset=UTF-8", Content: "weekly report"},
		{Name: "document", Filename: "report.json", ContentType: "application/json", Content: `{"a":1}`},
	}, srv.parts[0])
}

func TestSend_ReturnsBody(t *testing.T) {
	srv := newBotServer(t)
	c, err := New("TOKEN", WithBaseURL(srv.URL))
	require.NoError(t, err)

	body, err := c.Send(context.Background(), "sendMessage", Payload{{Name: "chat_id", Value: "1"}, {Name: "text", Value: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, body)
}

func TestSendAsync(t *testing.T) {
	srv := newBotServer(t)
	c, err := New("TOKEN", WithBaseURL(srv.URL))
	require.NoError(t, err)

	results := c.SendAsync(context.Background(), "sendPhoto", Payload{}.
		With("chat_id", 1).
		With("photo", []byte{0x89, 'P', 'N', 'G'}))

	res, ok := <-results
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusOK, res.Response.Status)

	_, ok = <-results
	assert.False(t, ok, "channel should be closed after one result")

	require.Len(t, srv.parts, 1)
	require.Len(t, srv.parts[0], 2)
	assert.Equal(t, "\x89PNG", srv.parts[0][1].Content)
	assert.Equal(t, multipart.DefaultContentType, srv.parts[0][1].ContentType)
}

func TestDo_EmptyPayload(t *testing.T) {
	c, err := New("TOKEN")
	require.NoError(t, err)

	_, err = c.Do(context.Background(), "sendMessage", nil)
	assert.True(t, errors.Is(err, multipart.ErrEmptyBody))

	_, err = c.Do(context.Background(), "", Payload{{Name: "a", Value: "b"}})
	assert.Error(t, err)
}

// failingDoer reads part of the body and then fails like an aborted upload.
type failingDoer struct {
	read int
}

func (d *failingDoer) Do(req *http.Request) (*http.Response, error) {
	buf := make([]byte, d.read)
	_, _ = io.ReadFull(req.Body, buf)
	return nil, errors.New("connection reset by peer")
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestDo_AbortedUploadClosesSource(t *testing.T) {
	src := &closeCounter{Reader: strings.NewReader(strings.Repeat("z", 4096))}
	c, err := New("TOKEN", WithHTTPClient(&failingDoer{read: 300}), WithChunkSize(64))
	require.NoError(t, err)

	payload := Payload{}.
		With("chat_id", "1").
		With("video", NewResource("clip.mp4", "video/mp4", func() (io.ReadCloser, error) { return src, nil }))

	_, err = c.Do(context.Background(), "sendVideo", payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendVideo request failed")
	assert.Equal(t, 1, src.closes)
}

func TestURLSource(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "episode bytes")
	}))
	defer remote.Close()

	open := URLSource(context.Background(), remote.Client(), remote.URL+"/ep1.mp3")
	for i := 0; i < 2; i++ { // every open is a fresh download
		rc, err := open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "episode bytes", string(b))
	}

	_, err := URLSource(context.Background(), remote.Client(), remote.URL+"/missing.mp3")()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
