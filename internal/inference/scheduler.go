package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gamepilot/internal/game"
)

// Options selects a backend.
type Options struct {
	// ModelPath is a Linear artifact. Empty or missing selects Simulation.
	ModelPath string
	// RemoteURL, when set, takes precedence over ModelPath.
	RemoteURL     string
	RemoteTimeout time.Duration
}

// SelectBackend picks the backend implied by opts. A missing artifact is
// not an error: it selects Simulation.
func SelectBackend(opts Options) Backend {
	if opts.RemoteURL != "" {
		return NewRemote(RemoteConfig{URL: opts.RemoteURL, Timeout: opts.RemoteTimeout})
	}
	if opts.ModelPath == "" {
		return Simulation{}
	}
	if _, err := os.Stat(opts.ModelPath); errors.Is(err, os.ErrNotExist) {
		return Simulation{}
	}
	return NewLinear(opts.ModelPath)
}

// Scheduler serializes inference on one backend.
//
// Lifecycle:
//  1. NewScheduler(backend)
//  2. Init: loads the backend; failure is an initialization error
//  3. Infer: once per tick, never overlapping
//  4. Release: frees the backend; safe to call repeatedly
type Scheduler struct {
	backend Backend
	logger  *log.Logger

	mu     sync.Mutex
	loaded bool
	calls  uint64
}

// NewScheduler wraps backend.
func NewScheduler(backend Backend, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		backend: backend,
		logger:  logger.WithPrefix("inference"),
	}
}

// Backend returns the wrapped backend's name.
func (s *Scheduler) Backend() string {
	return s.backend.Name()
}

// Init loads the backend. Calling Init on a loaded scheduler is a no-op.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	start := time.Now()
	if err := s.backend.Load(ctx); err != nil {
		return fmt.Errorf("inference: load %s backend: %w", s.backend.Name(), err)
	}
	s.loaded = true
	s.logger.Info("engine initialized", "backend", s.backend.Name(), "took", time.Since(start))
	if _, ok := s.backend.(Simulation); ok {
		s.logger.Warn("no model artifact found, using simulation mode")
	}
	return nil
}

// Loaded reports whether Init succeeded and Release has not run since.
func (s *Scheduler) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Infer runs the backend on frame and validates the output length.
// Concurrent callers are queued; at most one inference runs at a time.
func (s *Scheduler) Infer(ctx context.Context, frame *game.Frame) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	if frame == nil {
		return nil, fmt.Errorf("inference: nil frame")
	}

	s.calls++
	out, err := s.backend.Infer(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if len(out) != OutputSize {
		return nil, fmt.Errorf("inference: %w: got %d values, want %d", ErrMalformedOutput, len(out), OutputSize)
	}
	return out, nil
}

// Release frees the backend. Idempotent.
func (s *Scheduler) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("backend close failed", "err", err)
	}
	s.loaded = false
	s.logger.Info("engine released", "calls", s.calls)
}
