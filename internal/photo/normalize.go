// Package photo normalizes uploaded images into the envelope submitted to
// capability providers: RGB, bounded dimensions, fixed-quality JPEG.
package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
	"github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/webp" // register webp decoding
)

// InvalidInputError reports input that is not a processable image. No
// provider is invoked and no ledger entry is written for these.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "photo: invalid input: " + e.Reason
}

// Options bounds the normalized output.
type Options struct {
	// MaxEdge caps the longest edge in pixels. Larger images are
	// downsampled; smaller ones are never upsampled.
	MaxEdge int
	// JPEGQuality is the re-encode quality (1-100).
	JPEGQuality int
}

// DefaultOptions returns the standard provider submission envelope.
func DefaultOptions() Options {
	return Options{MaxEdge: 2048, JPEGQuality: 85}
}

// Info describes what Normalize did.
type Info struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	Resized    bool   `json:"resized"`
	Reoriented bool   `json:"reoriented"`
}

var acceptedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/tiff": "tiff",
	"image/bmp":  "bmp",
}

// Normalize decodes raw upload bytes and produces the provider submission
// bytes: EXIF orientation applied, alpha composited over white, RGB, longest
// edge capped at opts.MaxEdge, JPEG at opts.JPEGQuality. The caller's slice
// is never modified.
func Normalize(raw []byte, opts Options) ([]byte, Info, error) {
	var info Info

	if len(raw) == 0 {
		return nil, info, &InvalidInputError{Reason: "empty input"}
	}

	mtype := mimetype.Detect(raw)
	format, ok := acceptedTypes[mtype.String()]
	if !ok {
		return nil, info, &InvalidInputError{Reason: fmt.Sprintf("unsupported type %s", mtype.String())}
	}
	info.Format = format

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, info, &InvalidInputError{Reason: "undecodable image: " + err.Error()}
	}

	if orient := orientation(raw); orient > 1 {
		img = applyOrientation(img, orient)
		info.Reoriented = true
	}

	if opts.MaxEdge > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxEdge || b.Dy() > opts.MaxEdge {
			img = imaging.Fit(img, opts.MaxEdge, opts.MaxEdge, imaging.Lanczos)
			info.Resized = true
		}
	}

	img = flatten(img)

	bounds := img.Bounds()
	info.Width = bounds.Dx()
	info.Height = bounds.Dy()

	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultOptions().JPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, info, eris.Wrap(err, "photo: encode jpeg")
	}

	return buf.Bytes(), info, nil
}

// orientation reads the EXIF orientation tag, returning 1 (normal) when the
// image carries no usable EXIF block.
func orientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation maps EXIF orientation values 2-8 onto flips/rotations.
func applyOrientation(img image.Image, orient int) image.Image {
	switch orient {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// flatten composites the image over a white background, dropping any alpha
// channel so the JPEG encode sees opaque RGB.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
