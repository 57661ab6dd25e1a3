package streaming

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
)

// MockFrameSource synthesizes JPEG test frames, adapted from the teacher's
// MockCamera for use where no real GVSP-producing hardware is attached
// (development, and the frame source cmd/gvcamd wires in).
type MockFrameSource struct {
	Width, Height int
}

// NewMockFrameSource builds a source at the device's default resolution
// (spec §6 vendor register defaults: 640x480).
func NewMockFrameSource() *MockFrameSource {
	return &MockFrameSource{Width: 640, Height: 480}
}

func (m *MockFrameSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r := uint8((x * 255) / m.Width)
			g := uint8((y * 255) / m.Height)
			b := uint8(rand.Intn(256))
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
