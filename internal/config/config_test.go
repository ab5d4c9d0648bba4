package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := DefaultRunConfig()

	assert.Equal(t, 20, c.FrameRate)
	assert.Equal(t, 0.5, c.CaptureScale)
	assert.Equal(t, 50, c.ActionDelayMs)
	assert.Equal(t, StrategyBalanced, c.Strategy)
	assert.True(t, c.AutoPickup)
	assert.Equal(t, 30, c.AutoPotionThreshold)
	assert.Equal(t, 50*time.Millisecond, c.FrameInterval())
}

func TestStrategyThresholds(t *testing.T) {
	assert.Equal(t, 30.0, StrategyAggressive.HealthThreshold())
	assert.Equal(t, 50.0, StrategyBalanced.HealthThreshold())
	assert.Equal(t, 70.0, StrategyConservative.HealthThreshold())

	s, err := ParseStrategy(" Conservative ")
	require.NoError(t, err)
	assert.Equal(t, StrategyConservative, s)

	_, err = ParseStrategy("reckless")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestClamp(t *testing.T) {
	c := RunConfig{
		FrameRate:           60,
		CaptureScale:        0.1,
		ActionDelayMs:       1000,
		Strategy:            "reckless",
		AutoPotionThreshold: -5,
	}.Clamp()

	assert.Equal(t, MaxFrameRate, c.FrameRate)
	assert.Equal(t, MinCaptureScale, c.CaptureScale)
	assert.Equal(t, MaxActionDelayMs, c.ActionDelayMs)
	assert.Equal(t, StrategyBalanced, c.Strategy)
	assert.Equal(t, 0, c.AutoPotionThreshold)
}

func TestStoreUpdateIsWholeRecord(t *testing.T) {
	s := NewStore(DefaultRunConfig())

	var notified []RunConfig
	var mu sync.Mutex
	s.OnChange(func(c RunConfig) {
		mu.Lock()
		notified = append(notified, c)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(c RunConfig) RunConfig {
				c.AutoPotionThreshold++
				return c
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Load().AutoPotionThreshold)
	assert.Len(t, notified, 20)

	got := s.Set(RunConfig{FrameRate: 15, CaptureScale: 1, ActionDelayMs: 40, Strategy: StrategyAggressive})
	assert.Equal(t, got, s.Load())
	assert.Equal(t, StrategyAggressive, s.Load().Strategy)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFile(), f)
}

func TestLoadFileRejectsUnknownExtension(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "config.ini"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSaveLoadEachFormat(t *testing.T) {
	dir := t.TempDir()
	want := DefaultFile()
	want.Run.Strategy = StrategyConservative
	want.Run.FrameRate = 25
	want.Platform.Kind = "desktop"
	want.API.Enabled = true
	want.Cookies = []CookieData{{Name: "session", Value: "abc", Domain: "example.com", Path: "/"}}

	for _, name := range []string{"c.yaml", "c.toml", "c.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			require.NoError(t, SaveFile(path, want))

			got, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  strategy: aggressive\n"), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyAggressive, f.Run.Strategy)
	assert.Equal(t, 20, f.Run.FrameRate)
	assert.Equal(t, "browser", f.Platform.Kind)
}

func TestLoadFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unterminated"), 0o644))

	f, err := LoadFile(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultFile(), f)
}
