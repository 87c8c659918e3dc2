package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/SolveWise/server/internal/core/error"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// withDeclaredSize rewrites the IHDR chunk of a PNG so its header claims
// w×h while the pixel data stays tiny.
func withDeclaredSize(data []byte, w, h uint32) []byte {
	out := bytes.Clone(data)
	// 8-byte signature, 4-byte length, "IHDR", then width and height
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestNormalize_DownscalesLongerSide(t *testing.T) {
	n := NewNormalizer(0, 0, 0)

	out, err := n.Normalize(pngBytes(t, 1600, 800))
	require.NoError(t, err)

	assert.Equal(t, 800, out.Width)
	assert.Equal(t, 400, out.Height)
	w, h := decodedSize(t, out.Data)
	assert.Equal(t, 800, w)
	assert.Equal(t, 400, h)
}

func TestNormalize_PortraitUsesFloor(t *testing.T) {
	out, err := NewNormalizer(800, 70, 0).Normalize(pngBytes(t, 333, 1000))
	require.NoError(t, err)

	assert.Equal(t, 266, out.Width)
	assert.Equal(t, 800, out.Height)
}

func TestNormalize_SmallImageKeepsSize(t *testing.T) {
	out, err := NewNormalizer(800, 70, 0).Normalize(pngBytes(t, 640, 480))
	require.NoError(t, err)

	w, h := decodedSize(t, out.Data)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestNormalize_Base64HasNoHeader(t *testing.T) {
	out, err := NewNormalizer(800, 70, 0).Normalize(pngBytes(t, 10, 10))
	require.NoError(t, err)

	b64 := out.Base64()
	assert.NotContains(t, b64, "data:")
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, out.Data, raw)
}

func TestNormalize_Undecodable(t *testing.T) {
	n := NewNormalizer(800, 70, 0)

	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": pngBytes(t, 20, 20)[:40],
	} {
		t.Run(name, func(t *testing.T) {
			out, err := n.Normalize(data)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, errx.ErrImageDecode)
		})
	}
}

func TestNormalize_RejectsOversizedHeader(t *testing.T) {
	data := withDeclaredSize(pngBytes(t, 4, 4), 60000, 60000)

	out, err := NewNormalizer(800, 70, 0).Normalize(data)
	assert.Nil(t, out)
	require.ErrorIs(t, err, errx.ErrImageDecode)
	assert.Contains(t, err.Error(), "60000x60000")
}

func TestNormalize_PixelCapIsConfigurable(t *testing.T) {
	data := pngBytes(t, 20, 20)

	_, err := NewNormalizer(800, 70, 399).Normalize(data)
	assert.ErrorIs(t, err, errx.ErrImageDecode)

	out, err := NewNormalizer(800, 70, 400).Normalize(data)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Width)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{1600, 800, 800, 800, 400},
		{800, 1600, 800, 400, 800},
		{801, 3, 800, 800, 2},
		{5000, 1, 800, 800, 1},
		{800, 800, 800, 800, 800},
		{100, 50, 800, 100, 50},
	}
	for _, tt := range tests {
		w, h := FitWithin(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}
