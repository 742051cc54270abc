package objectstore

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	IconSize        = 128
	IconContentType = "image/webp"

	maxIconBytes = 8 << 20
)

var ErrIconTooLarge = errors.New("icon exceeds 8 MiB")

// NormalizeIcon decodes a JPEG, PNG or WebP image, applies its EXIF
// orientation, crops it to a centred square of IconSize pixels, masks it to
// a circle and re-encodes it as WebP.
func NormalizeIcon(r io.Reader) (*bytes.Buffer, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxIconBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read icon: %w", err)
	}
	if len(buf) > maxIconBytes {
		return nil, ErrIconTooLarge
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon: %w", err)
	}
	img = orient(img, exifOrientation(buf))
	img = imaging.Fill(img, IconSize, IconSize, imaging.Center, imaging.Lanczos)

	out := new(bytes.Buffer)
	if err := webp.Encode(out, roundMask(img), &webp.Options{Quality: 50}); err != nil {
		return nil, fmt.Errorf("failed to encode icon: %w", err)
	}
	return out, nil
}

func exifOrientation(buf []byte) int {
	x, err := exif.Decode(bytes.NewReader(buf))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return imaging.Rotate180(img)
	case 6:
		return imaging.Rotate270(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

func roundMask(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	r := b.Dx() / 2
	for y := range b.Dy() {
		for x := range b.Dx() {
			dx, dy := x-r, y-r
			if dx*dx+dy*dy <= r*r {
				dst.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
			} else {
				dst.Set(x, y, color.NRGBA{})
			}
		}
	}
	return dst
}
