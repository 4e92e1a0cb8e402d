// Package portrait writes the padded face crops shown to the user for naming.
package portrait

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facefolio/internal/types"
	"github.com/disintegration/imaging"

	// .bmp inputs; gif, jpeg and png come with imaging.
	_ "golang.org/x/image/bmp"
)

// DefaultPadding is the transparent margin around each crop, in pixels.
const DefaultPadding = 20

var (
	// ErrPortraitExists is returned when the portrait for an index was already written.
	ErrPortraitExists = errors.New("portrait already exists")
	// ErrDecode wraps failures to read the source photo or locate the face in it.
	ErrDecode = errors.New("cannot decode source image")
)

// Extractor writes portraits into Dir.
type Extractor struct {
	Dir     string
	Padding int
}

// New returns an Extractor with the default padding.
func New(dir string) *Extractor {
	return &Extractor{Dir: dir, Padding: DefaultPadding}
}

// Path returns the deterministic portrait file for an identity index.
func (e *Extractor) Path(index int) string {
	return filepath.Join(e.Dir, fmt.Sprintf("person_%d.png", index))
}

// Extract crops box out of the photo at src and writes it as person_<index>.png.
// Boxes are clipped to the image. EXIF orientation is ignored so the box lines
// up with the pixels the engine saw.
func (e *Extractor) Extract(src string, box types.BoundingBox, index int) (string, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(false))
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrDecode, src, err)
	}

	face, err := Render(img, box, e.Padding)
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrDecode, src, err)
	}

	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", err
	}
	path := e.Path(index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, ErrPortraitExists
		}
		return "", err
	}
	if err := imaging.Encode(f, face, imaging.PNG); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode portrait: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Render returns the crop of box from img centred on a transparent canvas
// padding pixels larger on every side.
func Render(img image.Image, box types.BoundingBox, padding int) (*image.NRGBA, error) {
	rect := box.Rect().Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("face box %+v lies outside the image", box)
	}

	crop := imaging.Crop(img, rect)
	w, h := crop.Bounds().Dx(), crop.Bounds().Dy()
	canvas := imaging.New(w+2*padding, h+2*padding, color.NRGBA{255, 255, 255, 0})
	return imaging.Paste(canvas, crop, image.Pt(padding, padding)), nil
}
