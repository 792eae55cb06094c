package coldstorage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
)

// DefaultThumbnailSize bounds the larger side of generated thumbnails.
const DefaultThumbnailSize = 128

// ImageThumbnailer scales decodable images (PNG, JPEG, GIF) down to a PNG no
// larger than MaxSize on either side. Anything else gets a placeholder PNG.
type ImageThumbnailer struct {
	MaxSize int
}

// Thumbnail implements ThumbnailFactory.
func (t ImageThumbnailer) Thumbnail(ctx context.Context, content []byte, mimeType string) ([]byte, string, error) {
	limit := t.MaxSize
	if limit <= 0 {
		limit = DefaultThumbnailSize
	}

	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		src = placeholder()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scale(src, limit)); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/png", nil
}

func placeholder() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xc0
	}
	return img
}

// scale resizes src with nearest neighbour sampling to fit in limit x limit.
func scale(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}

	nw, nh := limit, limit
	if w > h {
		nh = h * limit / w
	} else {
		nw = w * limit / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, color.RGBAModel.Convert(src.At(sx, sy)))
		}
	}
	return dst
}

// StaticThumbnailer returns the same substitute for every document.
type StaticThumbnailer struct {
	Content  []byte
	MimeType string
}

// Thumbnail implements ThumbnailFactory.
func (t StaticThumbnailer) Thumbnail(ctx context.Context, content []byte, mimeType string) ([]byte, string, error) {
	mt := t.MimeType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return append([]byte(nil), t.Content...), mt, nil
}
