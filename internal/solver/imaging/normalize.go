package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// registered decoders
	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	errx "github.com/SolveWise/server/internal/core/error"
)

const (
	DefaultMaxSide   = 800
	DefaultQuality   = 70
	DefaultMaxPixels = 24_000_000

	// MIMEType is the encoding of every normalized payload.
	MIMEType = "image/jpeg"
)

// Normalized is a downsampled JPEG ready to be sent to the provider.
type Normalized struct {
	Data   []byte
	Width  int
	Height int
}

// Base64 returns the payload without a data-URI header.
func (n *Normalized) Base64() string {
	return base64.StdEncoding.EncodeToString(n.Data)
}

// Normalizer scales photos so the longer side is at most MaxSide.
// Sources whose header declares more than MaxPixels are refused before
// any pixel data is decoded.
type Normalizer struct {
	MaxSide   int
	Quality   int
	MaxPixels int
}

func NewNormalizer(maxSide, quality, maxPixels int) *Normalizer {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Normalizer{MaxSide: maxSide, Quality: quality, MaxPixels: maxPixels}
}

// Normalize decodes data, downsamples it preserving aspect ratio and
// re-encodes it as JPEG. Decode failures are errx.ErrImageDecode.
func (n *Normalizer) Normalize(data []byte) (*Normalized, error) {
	if len(data) == 0 {
		return nil, errx.ImageDecode(fmt.Errorf("empty image"))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, errx.ImageDecode(fmt.Errorf("unsupported content type %s", mt.String()))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errx.ImageDecode(err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.MaxPixels) {
		return nil, errx.ImageDecode(fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, n.MaxPixels))
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errx.ImageDecode(err)
	}

	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), n.MaxSide)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; paint white first so transparent areas don't turn black
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Normalized{Data: buf.Bytes(), Width: w, Height: h}, nil
}

// FitWithin returns the dimensions of a w×h image scaled so its longer side
// equals maxSide. Images that already fit are returned unchanged.
func FitWithin(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w > h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
