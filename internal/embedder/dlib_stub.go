//go:build !dlib

package embedder

import (
	"context"
	"errors"
)

// ErrDlibUnavailable is returned when the binary was built without the dlib tag.
var ErrDlibUnavailable = errors.New("dlib engine not compiled in (rebuild with -tags dlib)")

// NewDlibFactory returns a factory that always fails in builds without dlib.
func NewDlibFactory(modelsDir string) Factory {
	return func(ctx context.Context, id int) (Engine, error) {
		return nil, ErrDlibUnavailable
	}
}
