package telex

import (
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/multipart"
	"gopkg.in/telebot.v3"
)

// Field is one named value of a request payload.
type Field struct {
	Name  string
	Value any
}

// Payload is an ordered list of fields. Fields are sent in order and
// repeated names are kept.
//
// Values are converted as follows:
//   - string: text field
//   - Path: file read from disk, named after its base name
//   - Resource: file with the resource's name and type
//   - multipart.OpenFunc, func() (io.ReadCloser, error) and []byte: file with a
//     generated name and application/octet-stream type
//   - telebot.File: file_id or URL as text, local file as Path, reader as a
//     one-shot file
//   - nil: skipped
//   - anything else: text field holding fmt.Sprint(value)
type Payload []Field

// With returns a new payload holding p's fields followed by one more.
// p itself is never modified, so one base payload can be extended into
// several independent requests.
func (p Payload) With(name string, value any) Payload {
	return append(slices.Clip(p), Field{Name: name, Value: value})
}

// Path is a filesystem path sent as a file upload.
type Path string

// Resource is a named binary value. Open is called once per upload attempt.
type Resource interface {
	Open() (io.ReadCloser, error)
	Filename() string
	ContentType() string
}

type resource struct {
	open        multipart.OpenFunc
	filename    string
	contentType string
}

// NewResource wraps an open function as a Resource.
func NewResource(filename, contentType string, open multipart.OpenFunc) Resource {
	return &resource{open: open, filename: filename, contentType: contentType}
}

func (r *resource) Open() (io.ReadCloser, error) { return r.open() }
func (r *resource) Filename() string             { return r.filename }
func (r *resource) ContentType() string          { return r.contentType }

// Build encodes the payload into a fresh encoder and returns it together
// with the body stream.
func (p Payload) Build(opts ...multipart.Option) (*multipart.Encoder, *multipart.Stream, error) {
	enc, err := multipart.NewEncoder(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := p.encode(enc); err != nil {
		return nil, nil, err
	}
	stream, err := enc.Build()
	if err != nil {
		return nil, nil, err
	}
	return enc, stream, nil
}

func (p Payload) encode(enc *multipart.Encoder) error {
	for _, f := range p {
		if err := addField(enc, f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func addField(enc *multipart.Encoder, name string, value any) error {
	if name == "" {
		return errors.New("telex: field name is required")
	}
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return enc.AddText(name, v)
	case Path:
		return enc.AddPath(name, string(v))
	case Resource:
		return enc.AddFile(name, v.Filename(), v.ContentType(), v.Open)
	case multipart.OpenFunc:
		return enc.AddFile(name, uuid.NewString(), "", v)
	case func() (io.ReadCloser, error):
		return enc.AddFile(name, uuid.NewString(), "", v)
	case []byte:
		return enc.AddFile(name, uuid.NewString(), "", multipart.BytesSource(v))
	case telebot.File:
		return addTelebotFile(enc, name, &v)
	case *telebot.File:
		if v == nil {
			return nil
		}
		return addTelebotFile(enc, name, v)
	default:
		return enc.AddText(name, fmt.Sprint(v))
	}
}

// addTelebotFile mirrors telebot's own precedence: an uploaded file_id, then
// a URL, then a local file, then a reader.
func addTelebotFile(enc *multipart.Encoder, name string, f *telebot.File) error {
	switch {
	case f.FileID != "":
		return enc.AddText(name, f.FileID)
	case f.FileURL != "":
		return enc.AddText(name, f.FileURL)
	case f.FileLocal != "":
		return enc.AddPath(name, f.FileLocal)
	case f.FileReader != nil:
		return enc.AddFile(name, uuid.NewString(), "", multipart.ReaderSource(f.FileReader))
	}
	return errors.Errorf("telex: telebot file for field %q has no content", name)
}
