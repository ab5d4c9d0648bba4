package control

import (
	"sync"
	"time"
)

// StatsWindow is the number of ticks averaged by the rolling statistics.
const StatsWindow = 64

// Stats is a snapshot of the control loop's counters.
type Stats struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	Status            Status    `json:"status"`
	FrameCount        uint64    `json:"frame_count"`
	AvgInferenceMs    float64   `json:"avg_inference_ms"`
	AvgActionMs       float64   `json:"avg_action_ms"`
	FPS               float64   `json:"fps"`
	InferenceFailures uint64    `json:"inference_failures"`
	DispatchFailures  uint64    `json:"dispatch_failures"`
	Panics            uint64    `json:"panics"`
	LastScreen        string    `json:"last_screen"`
}

type sample struct {
	inference time.Duration
	action    time.Duration
}

// recorder is written by the control loop and read by observers.
type recorder struct {
	mu     sync.RWMutex
	stats  Stats
	window [StatsWindow]sample
	next   int
	filled int
	sumInf time.Duration
	sumAct time.Duration
}

func (r *recorder) reset(runID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{RunID: runID, StartedAt: now}
	r.window = [StatsWindow]sample{}
	r.next, r.filled = 0, 0
	r.sumInf, r.sumAct = 0, 0
}

// tick records one completed tick. total excludes the inter-tick delay.
func (r *recorder) tick(inference, action, total time.Duration, screen string) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.window[r.next]
	if r.filled == StatsWindow {
		r.sumInf -= old.inference
		r.sumAct -= old.action
	} else {
		r.filled++
	}
	r.window[r.next] = sample{inference: inference, action: action}
	r.next = (r.next + 1) % StatsWindow
	r.sumInf += inference
	r.sumAct += action

	r.stats.FrameCount++
	r.stats.AvgInferenceMs = ms(r.sumInf) / float64(r.filled)
	r.stats.AvgActionMs = ms(r.sumAct) / float64(r.filled)
	r.stats.FPS = 0
	if total > 0 {
		r.stats.FPS = 1000 / ms(total)
	}
	r.stats.LastScreen = screen
	return r.stats
}

func (r *recorder) inferenceFailed() {
	r.mu.Lock()
	r.stats.InferenceFailures++
	r.mu.Unlock()
}

func (r *recorder) dispatchFailed(n int) {
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.stats.DispatchFailures += uint64(n)
	r.mu.Unlock()
}

func (r *recorder) panicked() {
	r.mu.Lock()
	r.stats.Panics++
	r.mu.Unlock()
}

func (r *recorder) snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
