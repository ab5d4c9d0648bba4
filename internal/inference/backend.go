// Package inference owns the model resource and runs one inference per tick.
//
// Backends:
//   - Linear: a dense model artifact loaded from disk (model.go)
//   - Remote: an HTTP inference endpoint (remote.go)
//   - Simulation: deterministic synthetic output when no artifact exists
//
// The Scheduler wraps a backend and guarantees that calls never overlap,
// that every output has exactly OutputSize values, and that Release is
// idempotent.
package inference

import (
	"context"
	"errors"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"gamepilot/internal/game"
)

// Tensor shapes.
const (
	InputWidth    = 224
	InputHeight   = 224
	InputChannels = 3
	InputSize     = InputWidth * InputHeight * InputChannels
	OutputSize    = 256
)

var (
	// ErrMalformedOutput is returned when a backend's output has the wrong length.
	ErrMalformedOutput = errors.New("malformed inference output")
	// ErrNotLoaded is returned by Infer before Init or after Release.
	ErrNotLoaded = errors.New("inference engine not loaded")
)

// Backend is one way of turning a frame into an output vector.
type Backend interface {
	Name() string
	Load(ctx context.Context) error
	Infer(ctx context.Context, frame *game.Frame) ([]float32, error)
	Close() error
}

// Preprocess scales frame to InputWidth x InputHeight and returns the RGB
// values in row-major HWC order normalized to [-1, 1) as (v-128)/128.
func Preprocess(frame *game.Frame) []float32 {
	src := frame.Image()
	dst := image.NewRGBA(image.Rect(0, 0, InputWidth, InputHeight))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := make([]float32, 0, InputSize)
	for y := 0; y < InputHeight; y++ {
		for x := 0; x < InputWidth; x++ {
			c := dst.RGBAAt(x, y)
			out = append(out, normalize(c.R), normalize(c.G), normalize(c.B))
		}
	}
	return out
}

func normalize(v uint8) float32 {
	return (float32(v) - 128) / 128
}

// meanLuminance averages the Rec. 601 luma of every pixel, 0-255.
func meanLuminance(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			sum += float64(g.Y)
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}
