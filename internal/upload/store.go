package upload

import (
	"context"
	"io"
)

// File is an image as received from a form: the client's filename and the
// bytes. A nil *File means "no image supplied".
type File struct {
	Name string
	Body io.Reader
}

// Store persists uploaded images under a sanitised name.
type Store interface {
	// Save writes body under name, replacing any existing file with that name.
	Save(ctx context.Context, name string, body io.Reader) error
	// Delete removes name. A missing file is not an error.
	Delete(ctx context.Context, name string) error
	// URL returns the address a browser should use to fetch name.
	URL(name string) string
}
