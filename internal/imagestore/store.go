// Package imagestore keeps uploaded product pictures and their resized
// derivatives.
package imagestore

import (
	"context"
	"io"
	"strings"

	"github.com/go-faster/errors"
)

var (
	ErrArtifactNotFound  = errors.New("image artifact not found")
	ErrProtectedArtifact = errors.New("image artifact is protected")
	ErrUnsupportedImage  = errors.New("unsupported image data")
	ErrInvalidReference  = errors.New("invalid image reference")
)

// DefaultImage is the placeholder picture that is never deleted.
const DefaultImage = "default.webp"

// Store saves an image with a width x height derivative under folder and
// returns the generated reference. Delete removes both using the same
// folder and dimensions.
type Store interface {
	Add(ctx context.Context, data io.Reader, folder string, width, height int) (string, error)
	Delete(ctx context.Context, reference, folder string, width, height int) error
}

func checkSegment(kind, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return errors.Wrapf(ErrInvalidReference, "%s %q", kind, s)
	}
	return nil
}
