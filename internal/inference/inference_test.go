package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/decoder"
	"gamepilot/internal/game"
)

func solidFrame(v uint8, seq uint64) *game.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return game.NewFrame(img, 1080, 1920, time.Unix(0, 0), seq)
}

// stubBackend returns a fixed vector and tracks overlap.
type stubBackend struct {
	out       []float32
	loadErr   error
	inferErr  error
	delay     time.Duration
	inFlight  atomic.Int32
	overlaps  atomic.Int32
	closes    atomic.Int32
	callCount atomic.Int32
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Load(context.Context) error { return b.loadErr }

func (b *stubBackend) Infer(context.Context, *game.Frame) ([]float32, error) {
	if b.inFlight.Add(1) > 1 {
		b.overlaps.Add(1)
	}
	defer b.inFlight.Add(-1)
	b.callCount.Add(1)
	time.Sleep(b.delay)
	return b.out, b.inferErr
}

func (b *stubBackend) Close() error {
	b.closes.Add(1)
	return nil
}

func TestPreprocess(t *testing.T) {
	out := Preprocess(solidFrame(192, 0))
	require.Len(t, out, InputSize)
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[len(out)-1], 1e-6)

	out = Preprocess(solidFrame(0, 0))
	assert.InDelta(t, -1.0, out[0], 1e-6)
}

func TestModelRoundTrip(t *testing.T) {
	m := &Model{
		Inputs:  3,
		Outputs: 2,
		Weights: []float32{1, 0, 0, 0, 0, -1},
		Bias:    []float32{0, 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteModel(&buf, m))

	got, err := ReadModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	out, err := got.Forward(context.Background(), []float32{0, 5, 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.Less(t, out[1], float32(0.01))

	_, err = got.Forward(context.Background(), []float32{1})
	assert.Error(t, err)
}

func TestReadModelRejectsBadMagic(t *testing.T) {
	_, err := ReadModel(bytes.NewReader([]byte("NOPE\x01\x00\x00\x00\x01\x00\x00\x00\x01\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrBadModel)

	err = WriteModel(&bytes.Buffer{}, &Model{Inputs: 2, Outputs: 1, Weights: []float32{1}, Bias: []float32{0}})
	assert.ErrorIs(t, err, ErrBadModel)
}

func TestLinearRejectsWrongShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.gmdl")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteModel(f, &Model{Inputs: 2, Outputs: 1, Weights: []float32{1, 1}, Bias: []float32{0}}))
	require.NoError(t, f.Close())

	err = NewLinear(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrBadModel)

	_, err = NewLinear(path).Infer(context.Background(), solidFrame(1, 0))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestSelectBackend(t *testing.T) {
	assert.IsType(t, Simulation{}, SelectBackend(Options{}))
	assert.IsType(t, Simulation{}, SelectBackend(Options{ModelPath: filepath.Join(t.TempDir(), "missing.gmdl")}))
	assert.IsType(t, &Remote{}, SelectBackend(Options{RemoteURL: "http://127.0.0.1:1", ModelPath: "x"}))

	path := filepath.Join(t.TempDir(), "model.gmdl")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.IsType(t, &Linear{}, SelectBackend(Options{ModelPath: path}))
}

func TestSimulationIsDeterministic(t *testing.T) {
	sim := Simulation{}
	a, err := sim.Infer(context.Background(), solidFrame(200, 7))
	require.NoError(t, err)
	b, err := sim.Infer(context.Background(), solidFrame(200, 7))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, OutputSize)

	state := decoder.Decode(a, 1080, 1920)
	assert.Equal(t, game.ScreenBattle, state.Screen)
	require.Len(t, state.Enemies, 1)
	assert.True(t, state.Enemies[0].Aggressive)
	assert.InDelta(t, 80, state.Player.Health, 0.01)

	dark, err := sim.Infer(context.Background(), solidFrame(0, 7))
	require.NoError(t, err)
	assert.Equal(t, game.ScreenMainMenu, decoder.Decode(dark, 1080, 1920).Screen)
}

func TestSchedulerLifecycle(t *testing.T) {
	backend := &stubBackend{out: make([]float32, OutputSize)}
	s := NewScheduler(backend, botlog.Discard())

	_, err := s.Infer(context.Background(), solidFrame(1, 0))
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, s.Init(context.Background()))
	assert.True(t, s.Loaded())

	out, err := s.Infer(context.Background(), solidFrame(1, 0))
	require.NoError(t, err)
	assert.Len(t, out, OutputSize)

	s.Release()
	s.Release()
	assert.Equal(t, int32(1), backend.closes.Load())
	assert.False(t, s.Loaded())

	_, err = s.Infer(context.Background(), solidFrame(1, 0))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestSchedulerInitFailure(t *testing.T) {
	backend := &stubBackend{loadErr: errors.New("corrupt")}
	s := NewScheduler(backend, botlog.Discard())
	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
	assert.False(t, s.Loaded())
}

func TestSchedulerMalformedOutput(t *testing.T) {
	backend := &stubBackend{out: make([]float32, OutputSize-1)}
	s := NewScheduler(backend, botlog.Discard())
	require.NoError(t, s.Init(context.Background()))

	_, err := s.Infer(context.Background(), solidFrame(1, 0))
	assert.ErrorIs(t, err, ErrMalformedOutput)

	backend.out = nil
	backend.inferErr = errors.New("device lost")
	_, err = s.Infer(context.Background(), solidFrame(1, 0))
	assert.ErrorContains(t, err, "device lost")
}

func TestSchedulerSerializesCalls(t *testing.T) {
	backend := &stubBackend{out: make([]float32, OutputSize), delay: 5 * time.Millisecond}
	s := NewScheduler(backend, botlog.Discard())
	require.NoError(t, s.Init(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Infer(context.Background(), solidFrame(1, 0))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), backend.callCount.Load())
	assert.Zero(t, backend.overlaps.Load())
}

func TestRemoteBackend(t *testing.T) {
	var gotLen atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/infer":
			var req inferRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			gotLen.Store(int64(len(req.Input)))
			_ = json.NewEncoder(w).Encode(inferResponse{Output: make([]float32, OutputSize)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{URL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, r.Load(context.Background()))

	out, err := r.Infer(context.Background(), solidFrame(10, 0))
	require.NoError(t, err)
	assert.Len(t, out, OutputSize)
	assert.Equal(t, int64(InputSize), gotLen.Load())
	require.NoError(t, r.Close())
}

func TestRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{URL: srv.URL})
	assert.False(t, r.IsAvailable(context.Background()))
	assert.Error(t, r.Load(context.Background()))

	_, err := r.Infer(context.Background(), solidFrame(10, 0))
	assert.ErrorContains(t, err, "status 503")
}
