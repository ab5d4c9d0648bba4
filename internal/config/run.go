// Package config holds the run configuration and its persisted file form.
//
// Major Components:
//
// 1. RunConfig: the per-run tunables read by the control loop and the policy
//    every tick (frame rate, capture scale, action delay, strategy, potion).
//
// 2. Store: a whole-record, last-write-wins holder. Readers take one
//    consistent snapshot per tick; writers replace the entire record.
//
// 3. File: everything persisted on disk (run config plus platform, model,
//    knowledge, API and telemetry settings), loaded and saved as YAML,
//    TOML or JSON depending on the file extension.
package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Strategy selects how early the policy retreats.
type Strategy string

const (
	StrategyAggressive   Strategy = "aggressive"
	StrategyBalanced     Strategy = "balanced"
	StrategyConservative Strategy = "conservative"
)

// Strategies lists every strategy in menu order.
var Strategies = []Strategy{StrategyAggressive, StrategyBalanced, StrategyConservative}

// HealthThreshold returns the health percent below which the player retreats.
func (s Strategy) HealthThreshold() float64 {
	switch s {
	case StrategyAggressive:
		return 30
	case StrategyConservative:
		return 70
	default:
		return 50
	}
}

// ParseStrategy accepts strategy names case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Strategies {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("config: %w: %q", ErrUnknownStrategy, name)
}

// Value ranges accepted by Clamp.
const (
	MinFrameRate     = 10
	MaxFrameRate     = 30
	MinCaptureScale  = 0.25
	MaxCaptureScale  = 1.0
	MinActionDelayMs = 30
	MaxActionDelayMs = 200
)

// RunConfig holds the tunables read once per tick.
type RunConfig struct {
	FrameRate           int      `json:"frame_rate" yaml:"frame_rate" toml:"frame_rate"`
	CaptureScale        float64  `json:"capture_scale" yaml:"capture_scale" toml:"capture_scale"`
	ActionDelayMs       int      `json:"action_delay_ms" yaml:"action_delay_ms" toml:"action_delay_ms"`
	Strategy            Strategy `json:"strategy" yaml:"strategy" toml:"strategy"`
	AutoPickup          bool     `json:"auto_pickup" yaml:"auto_pickup" toml:"auto_pickup"`
	AutoPotionThreshold int      `json:"auto_potion_threshold" yaml:"auto_potion_threshold" toml:"auto_potion_threshold"`
}

// DefaultRunConfig returns 20 fps, scale 0.5, 50ms delay, balanced,
// auto-pickup on, potion at 30%.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		FrameRate:           20,
		CaptureScale:        0.5,
		ActionDelayMs:       50,
		Strategy:            StrategyBalanced,
		AutoPickup:          true,
		AutoPotionThreshold: 30,
	}
}

// Clamp forces every field into its documented range. An unknown strategy
// falls back to balanced.
func (c RunConfig) Clamp() RunConfig {
	c.FrameRate = clampInt(c.FrameRate, MinFrameRate, MaxFrameRate)
	c.CaptureScale = clampFloat(c.CaptureScale, MinCaptureScale, MaxCaptureScale)
	c.ActionDelayMs = clampInt(c.ActionDelayMs, MinActionDelayMs, MaxActionDelayMs)
	c.AutoPotionThreshold = clampInt(c.AutoPotionThreshold, 0, 100)
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		c.Strategy = StrategyBalanced
	} else {
		c.Strategy = Strategy(strings.ToLower(strings.TrimSpace(string(c.Strategy))))
	}
	return c
}

// FrameInterval is the capture period derived from FrameRate.
func (c RunConfig) FrameInterval() time.Duration {
	rate := c.FrameRate
	if rate <= 0 {
		rate = DefaultRunConfig().FrameRate
	}
	return time.Second / time.Duration(rate)
}

// ActionDelay is the pause between ticks.
func (c RunConfig) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMs) * time.Millisecond
}

// HealthThreshold is shorthand for c.Strategy.HealthThreshold().
func (c RunConfig) HealthThreshold() float64 {
	return c.Strategy.HealthThreshold()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Store holds the live RunConfig. Load returns a complete snapshot; Set and
// Update replace the whole record, so readers never observe a mix of old
// and new fields.
type Store struct {
	current   atomic.Pointer[RunConfig]
	listeners atomic.Pointer[[]func(RunConfig)]
}

// NewStore creates a store seeded with cfg (clamped).
func NewStore(cfg RunConfig) *Store {
	s := &Store{}
	c := cfg.Clamp()
	s.current.Store(&c)
	return s
}

// Load returns the current configuration.
func (s *Store) Load() RunConfig {
	return *s.current.Load()
}

// Set replaces the configuration and notifies listeners.
func (s *Store) Set(cfg RunConfig) RunConfig {
	c := cfg.Clamp()
	s.current.Store(&c)
	s.notify(c)
	return c
}

// Update applies fn to a snapshot and stores the result. Concurrent updates
// retry until their compare-and-swap succeeds.
func (s *Store) Update(fn func(RunConfig) RunConfig) RunConfig {
	for {
		old := s.current.Load()
		next := fn(*old).Clamp()
		if s.current.CompareAndSwap(old, &next) {
			s.notify(next)
			return next
		}
	}
}

// OnChange registers fn to run after every Set/Update.
func (s *Store) OnChange(fn func(RunConfig)) {
	for {
		old := s.listeners.Load()
		var next []func(RunConfig)
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, fn)
		if s.listeners.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *Store) notify(c RunConfig) {
	if fns := s.listeners.Load(); fns != nil {
		for _, fn := range *fns {
			fn(c)
		}
	}
}
