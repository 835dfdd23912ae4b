package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// normalizedImage is a decoded, bounded and re-encoded JPEG ready for embedding.
type normalizedImage struct {
	data   []byte
	width  int
	height int
}

// normalizeImage decodes JPEG/PNG/WEBP input, downsizes it so the longest edge is
// at most maxEdge pixels, flattens transparency onto white and re-encodes as JPEG.
func normalizeImage(raw []byte, maxEdge int) (normalizedImage, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return normalizedImage{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return normalizedImage{}, fmt.Errorf("decode image: empty bounds")
	}

	w, h := fitWithin(b.Dx(), b.Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)
	if w == b.Dx() && h == b.Dy() {
		stddraw.Draw(dst, dst.Bounds(), src, b.Min, stddraw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return normalizedImage{}, fmt.Errorf("encode image: %w", err)
	}
	return normalizedImage{data: buf.Bytes(), width: w, height: h}, nil
}

func fitWithin(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		nh := h * maxEdge / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := w * maxEdge / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}
