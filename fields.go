package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/telex"
)

// fieldFlag appends name=value pairs to a shared payload so that -f and -F
// fields keep the order they were given on the command line.
type fieldFlag struct {
	payload *telex.Payload
	file    bool
}

func (f fieldFlag) String() string {
	if f.payload == nil {
		return ""
	}
	var names []string
	for _, field := range *f.payload {
		names = append(names, field.Name)
	}
	return strings.Join(names, ",")
}

func (f fieldFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return errors.Errorf("expected name=value, got %q", s)
	}
	if !f.file {
		*f.payload = f.payload.With(name, value)
		return nil
	}
	value = strings.TrimPrefix(value, "@")
	if value == "" {
		return errors.Errorf("file field %q needs a path", name)
	}
	*f.payload = f.payload.With(name, telex.Path(value))
	return nil
}
