package inference

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"gamepilot/internal/game"
)

// Model artifact format (little endian):
//
//	magic   [4]byte "GMDL"
//	version uint32 (1)
//	inputs  uint32
//	outputs uint32
//	weights [outputs*inputs]float32, row-major by output
//	bias    [outputs]float32
var modelMagic = [4]byte{'G', 'M', 'D', 'L'}

const modelVersion = 1

// ErrBadModel is returned for artifacts that fail validation.
var ErrBadModel = errors.New("invalid model artifact")

// Model is a dense single-layer network with sigmoid outputs.
type Model struct {
	Inputs  int
	Outputs int
	Weights []float32
	Bias    []float32
}

// ReadModel decodes an artifact.
func ReadModel(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)

	var header struct {
		Magic   [4]byte
		Version uint32
		Inputs  uint32
		Outputs uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("inference: read model header: %w", err)
	}
	if header.Magic != modelMagic {
		return nil, fmt.Errorf("inference: %w: bad magic %q", ErrBadModel, header.Magic[:])
	}
	if header.Version != modelVersion {
		return nil, fmt.Errorf("inference: %w: version %d", ErrBadModel, header.Version)
	}
	if header.Inputs == 0 || header.Outputs == 0 || uint64(header.Inputs)*uint64(header.Outputs) > 1<<28 {
		return nil, fmt.Errorf("inference: %w: shape %dx%d", ErrBadModel, header.Outputs, header.Inputs)
	}

	m := &Model{
		Inputs:  int(header.Inputs),
		Outputs: int(header.Outputs),
		Weights: make([]float32, int(header.Inputs)*int(header.Outputs)),
		Bias:    make([]float32, header.Outputs),
	}
	if err := binary.Read(br, binary.LittleEndian, m.Weights); err != nil {
		return nil, fmt.Errorf("inference: read weights: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, m.Bias); err != nil {
		return nil, fmt.Errorf("inference: read bias: %w", err)
	}
	return m, nil
}

// WriteModel encodes m as an artifact.
func WriteModel(w io.Writer, m *Model) error {
	if len(m.Weights) != m.Inputs*m.Outputs || len(m.Bias) != m.Outputs {
		return fmt.Errorf("inference: %w: weights/bias do not match %dx%d", ErrBadModel, m.Outputs, m.Inputs)
	}
	bw := bufio.NewWriter(w)
	header := []interface{}{modelMagic, uint32(modelVersion), uint32(m.Inputs), uint32(m.Outputs), m.Weights, m.Bias}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("inference: write model: %w", err)
		}
	}
	return bw.Flush()
}

// Forward computes sigmoid(W·x + b). Output rows are split across up to
// GOMAXPROCS goroutines.
func (m *Model) Forward(ctx context.Context, x []float32) ([]float32, error) {
	if len(x) != m.Inputs {
		return nil, fmt.Errorf("inference: input length %d, model expects %d", len(x), m.Inputs)
	}

	out := make([]float32, m.Outputs)
	workers := runtime.GOMAXPROCS(0)
	chunk := (m.Outputs + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < m.Outputs; start += chunk {
		lo, hi := start, min(start+chunk, m.Outputs)
		g.Go(func() error {
			for j := lo; j < hi; j++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				row := m.Weights[j*m.Inputs : (j+1)*m.Inputs]
				var sum float32
				for i, w := range row {
					sum += w * x[i]
				}
				out[j] = sigmoid(sum + m.Bias[j])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// Linear runs a Model artifact loaded from Path.
type Linear struct {
	Path  string
	model *Model
}

// NewLinear creates a backend for the artifact at path.
func NewLinear(path string) *Linear {
	return &Linear{Path: path}
}

func (l *Linear) Name() string { return "linear" }

// Load reads and validates the artifact. The model must map InputSize
// inputs to OutputSize outputs.
func (l *Linear) Load(_ context.Context) error {
	f, err := os.Open(l.Path)
	if err != nil {
		return fmt.Errorf("inference: open model: %w", err)
	}
	defer f.Close()

	m, err := ReadModel(f)
	if err != nil {
		return err
	}
	if m.Inputs != InputSize {
		return fmt.Errorf("inference: %w: model takes %d inputs, need %d", ErrBadModel, m.Inputs, InputSize)
	}
	if m.Outputs != OutputSize {
		return fmt.Errorf("inference: %w: model has %d outputs, need %d", ErrBadModel, m.Outputs, OutputSize)
	}
	l.model = m
	return nil
}

func (l *Linear) Infer(ctx context.Context, frame *game.Frame) ([]float32, error) {
	if l.model == nil {
		return nil, ErrNotLoaded
	}
	return l.model.Forward(ctx, Preprocess(frame))
}

func (l *Linear) Close() error {
	l.model = nil
	return nil
}
