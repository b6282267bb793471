package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var _ Store = (*LocalStore)(nil)

const jpegQuality = 90

// MaxPixels bounds the declared size of an image accepted by LocalStore.
const MaxPixels = 40_000_000

// LocalStore writes images below a root directory:
// root/folder/<uuid>.jpg and root/folder/mini/<w>x<h>-<uuid>.jpg.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) paths(reference, folder string, width, height int) (string, string) {
	dir := filepath.Join(s.root, folder)
	return filepath.Join(dir, reference),
		filepath.Join(dir, "mini", fmt.Sprintf("%dx%d-%s", width, height, reference))
}

// Add decodes data (JPEG, PNG, GIF or WebP), stores it re-encoded as JPEG
// together with a center-cropped width x height thumbnail. Images declaring
// more than MaxPixels are rejected before decoding.
func (s *LocalStore) Add(ctx context.Context, data io.Reader, folder string, width, height int) (string, error) {
	if err := checkSegment("folder", folder); err != nil {
		return "", err
	}
	if width <= 0 || height <= 0 {
		return "", errors.Errorf("invalid thumbnail size %dx%d", width, height)
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", errors.Wrap(err, "read image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", errors.Wrap(ErrUnsupportedImage, err.Error())
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", errors.Wrapf(ErrUnsupportedImage, "image is %dx%d pixels", cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", errors.Wrap(ErrUnsupportedImage, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reference := uuid.New().String() + ".jpg"
	original, thumb := s.paths(reference, folder, width, height)
	if err := os.MkdirAll(filepath.Dir(thumb), 0o755); err != nil {
		return "", errors.Wrap(err, "create image folder")
	}
	if err := writeJPEG(original, src); err != nil {
		return "", err
	}
	if err := writeJPEG(thumb, fill(src, width, height)); err != nil {
		_ = os.Remove(original)
		return "", err
	}
	return reference, nil
}

// Delete removes the original and its thumbnail. It reports
// ErrArtifactNotFound when neither file exists.
func (s *LocalStore) Delete(_ context.Context, reference, folder string, width, height int) error {
	if reference == DefaultImage {
		return ErrProtectedArtifact
	}
	if err := checkSegment("reference", reference); err != nil {
		return err
	}
	if err := checkSegment("folder", folder); err != nil {
		return err
	}

	missing := 0
	original, thumb := s.paths(reference, folder, width, height)
	for _, p := range []string{thumb, original} {
		err := os.Remove(p)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			missing++
		default:
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	if missing == 2 {
		return errors.Wrapf(ErrArtifactNotFound, "%s/%s", folder, reference)
	}
	return nil
}

// fill crops src to the target aspect ratio around its center and scales it
// to exactly width x height.
func fill(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	cw, ch := sw, sw*height/width
	if ch > sh {
		ch = sh
		cw = sh * width / height
	}
	x0 := b.Min.X + (sw-cw)/2
	y0 := b.Min.Y + (sh-ch)/2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)
	return dst
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		_ = os.Remove(path)
		return errors.Wrapf(err, "encode %s", path)
	}
	return f.Close()
}
