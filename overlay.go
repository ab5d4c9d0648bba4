// Package main - overlay.go
//
// Debug overlay drawn on top of the game page in browser mode.
//
// Overlay Components:
//  1. Enemy boxes (red aggressive, yellow passive)
//  2. Player cross (cyan)
//  3. Aimed skill targets of the last tick (dashed magenta)
//  4. Status panel (top-left, 80% opaque): run status, screen, strategy,
//     timings, HP/MP
//  5. The last few log lines below the panel
//
// The overlay is redrawn every overlayEvery ticks from the tick callback.
// A redraw still in flight makes the next one skip, so a slow page never
// backs up the control loop. Stopping the loop removes the overlay.
package main

import (
	"fmt"
	"time"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
	"gamepilot/internal/game"
	"gamepilot/internal/platform"
)

const (
	overlayEvery    = 5
	overlayLogLines = 5
	overlayLogWidth = 48
)

// hookOverlay subscribes the overlay to controller events.
func (b *Bot) hookOverlay() {
	b.ctrl.OnTick(func(s control.Stats) {
		if s.FrameCount%overlayEvery != 0 {
			return
		}
		if !b.overlayBusy.CompareAndSwap(false, true) {
			return
		}
		SafeGo("overlay draw", func() {
			defer b.overlayBusy.Store(false)
			o := buildOverlay(s, b.ctrl.LastState(), b.ctrl.LastActions(), b.store.Load(), botlog.Recent(overlayLogLines), time.Now())
			if err := b.browser.DrawOverlay(b.ctx, o); err != nil {
				b.logger.Debug("overlay not drawn", "err", err)
			}
		})
	})
	b.ctrl.OnStatusChange(func(st control.Status) {
		if st != control.StatusIdle {
			return
		}
		SafeGo("overlay clear", func() {
			if err := b.browser.ClearOverlay(b.ctx); err != nil {
				b.logger.Debug("overlay not cleared", "err", err)
			}
		})
	})
	b.logger.Info("debug overlay enabled", "every", overlayEvery)
}

// buildOverlay assembles what the overlay shows for one tick.
func buildOverlay(s control.Stats, state *game.GameState, actions []game.Action, cfg config.RunConfig, logs []botlog.Entry, now time.Time) platform.Overlay {
	o := platform.Overlay{
		Lines: []string{
			statusLine(s, now),
			fmt.Sprintf("Strategy: %s (retreat < %.0f%%) | potion < %d%%", cfg.Strategy, cfg.HealthThreshold(), cfg.AutoPotionThreshold),
			fmt.Sprintf("Inference %.1fms | Action %.1fms", s.AvgInferenceMs, s.AvgActionMs),
		},
		Targets: aimedTargets(actions),
	}
	if state != nil {
		o.Lines = append(o.Lines, fmt.Sprintf("Screen: %s | %d enemies", state.Screen, len(state.Enemies)))
		o.Player = state.Player
		o.Enemies = state.Enemies
	}
	for _, e := range logs {
		line := e.Time.Format("15:04:05") + " " + e.Line
		if r := []rune(line); len(r) > overlayLogWidth {
			line = string(r[:overlayLogWidth-3]) + "..."
		}
		o.Log = append(o.Log, line)
	}
	return o
}
