// Package imaging prepares raw product images for transport to the
// embedding model: bounded downscale plus re-encode.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/lumenshop/visualsearch/internal/domain"
)

// MaxDimension bounds the longer image side before the image is sent to the
// embedding model.
const MaxDimension = 2048

// jpegQuality for re-encoded JPEGs.
const jpegQuality = 90

// Normalize decodes raw image bytes, downsizes the image so that neither
// dimension exceeds maxDim (preserving aspect ratio, never upscaling), and
// re-encodes it in its source format. Unsupported formats fall back to JPEG
// on encode; undecodable input is an error.
func Normalize(raw []byte, maxDim int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}

	img = fit(img, maxDim)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", domain.ErrImageDecode, format, err)
	}

	return buf.Bytes(), nil
}

// fit scales img down to fit within maxDim x maxDim. Images already within
// the bound are returned unchanged.
func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
