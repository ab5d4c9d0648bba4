// Package main - tray.go
//
// This file implements the system tray menu used to drive a run by hand.
// Uses getlantern/systray library for cross-platform tray menu support.
//
// Menu Structure:
//
//	gamepilot
//	├─ Status: state | frames | fps | uptime (read-only, refreshed every second)
//	├─ Start / Resume
//	├─ Pause
//	├─ Stop (releases the model; Start re-initializes)
//	├─ Strategy (radio: aggressive, balanced, conservative)
//	├─ Frame Rate (radio: 10, 15, 20, 25, 30 fps)
//	├─ Potion Threshold (radio: 0%-100% in 10% steps)
//	├─ Auto Pickup (checkbox)
//	└─ Quit (graceful shutdown)
//
// Concurrency Model:
// One goroutine per radio group item waits on its ClickedCh; the lifecycle
// items and Quit share a single select loop. Status changes reported by the
// controller update the status line and the enabled state of the lifecycle
// items immediately.
//
// Auto-Save:
// Every configuration change is applied to the shared run config (read by
// the next tick) and persisted with SaveState.
package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
)

const statusRefresh = time.Second

var (
	trayFrameRates = []int{10, 15, 20, 25, 30}
	trayThresholds = []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

// TrayApp manages the system tray application and user interface.
type TrayApp struct {
	bot *Bot

	statusItem *systray.MenuItem
	startItem  *systray.MenuItem
	pauseItem  *systray.MenuItem
	stopItem   *systray.MenuItem
	pickupItem *systray.MenuItem
	quitItem   *systray.MenuItem

	strategyItems  []*systray.MenuItem
	frameRateItems []*systray.MenuItem
	potionItems    []*systray.MenuItem

	quitOnce sync.Once
	done     chan struct{}
}

// NewTrayApp creates a new tray application
func NewTrayApp(bot *Bot) *TrayApp {
	return &TrayApp{
		bot:  bot,
		done: make(chan struct{}),
	}
}

// Run starts the tray and blocks until Quit.
func (t *TrayApp) Run() {
	botlog.Info("Starting system tray application")
	systray.Run(t.onReady, func() {
		botlog.Info("System tray onExit callback triggered")
		t.quitOnce.Do(func() { close(t.done) })
	})
	botlog.Info("System tray Run() returned")
}

// Quit closes the tray, which makes Run return.
func (t *TrayApp) Quit() {
	systray.Quit()
}

// onReady is called when the tray is ready
func (t *TrayApp) onReady() {
	systray.SetTitle("gamepilot")
	systray.SetTooltip("gamepilot control loop")

	t.statusItem = systray.AddMenuItem("Status: idle", "Current run status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.startItem = systray.AddMenuItem("Start", "Start or resume the control loop")
	t.pauseItem = systray.AddMenuItem("Pause", "Pause after the current tick")
	t.stopItem = systray.AddMenuItem("Stop", "Stop the loop and release the model")

	systray.AddSeparator()

	cfg := t.bot.store.Load()

	strategyMenu := systray.AddMenuItem("Strategy", "How early to retreat")
	for _, s := range config.Strategies {
		label := fmt.Sprintf("%s (retreat < %.0f%%)", s, s.HealthThreshold())
		t.strategyItems = append(t.strategyItems, strategyMenu.AddSubMenuItemCheckbox(label, "", s == cfg.Strategy))
	}

	frameMenu := systray.AddMenuItem("Frame Rate", "Capture rate")
	for _, fps := range trayFrameRates {
		t.frameRateItems = append(t.frameRateItems, frameMenu.AddSubMenuItemCheckbox(fmt.Sprintf("%d fps", fps), "", fps == cfg.FrameRate))
	}

	potionMenu := systray.AddMenuItem("Potion Threshold", "Health percent below which a potion is used")
	for _, pct := range trayThresholds {
		t.potionItems = append(t.potionItems, potionMenu.AddSubMenuItemCheckbox(fmt.Sprintf("%d%%", pct), "", pct == cfg.AutoPotionThreshold))
	}

	t.pickupItem = systray.AddMenuItemCheckbox("Auto Pickup", "Pick up loot automatically", cfg.AutoPickup)

	systray.AddSeparator()

	t.quitItem = systray.AddMenuItem("Quit", "Quit the application")

	t.bot.ctrl.OnStatusChange(func(control.Status) { t.refresh() })
	t.refresh()

	SafeGo("tray events", t.handleEvents)
	SafeGo("tray status", t.statusLoop)
	for i, s := range config.Strategies {
		s, item := s, t.strategyItems[i]
		SafeGo("tray strategy", func() { t.handleRadio(item, func() { t.setStrategy(s) }) })
	}
	for i, fps := range trayFrameRates {
		fps, item := fps, t.frameRateItems[i]
		SafeGo("tray frame rate", func() { t.handleRadio(item, func() { t.setFrameRate(fps) }) })
	}
	for i, pct := range trayThresholds {
		pct, item := pct, t.potionItems[i]
		SafeGo("tray potion", func() { t.handleRadio(item, func() { t.setPotionThreshold(pct) }) })
	}

	botlog.Info("System tray initialized")
}

// handleEvents handles the lifecycle items and Quit.
func (t *TrayApp) handleEvents() {
	for {
		select {
		case <-t.done:
			return
		case <-t.startItem.ClickedCh:
			botlog.Info("Start requested from tray")
			// initialization may take seconds; keep the menu responsive
			SafeGo("tray start", func() {
				if err := t.bot.ctrl.Start(t.bot.ctx); err != nil {
					botlog.Error("Start failed: %v", err)
				}
			})
		case <-t.pauseItem.ClickedCh:
			botlog.Info("Pause requested from tray")
			t.bot.ctrl.Pause()
		case <-t.stopItem.ClickedCh:
			botlog.Info("Stop requested from tray")
			SafeGo("tray stop", t.bot.ctrl.Stop)
		case <-t.pickupItem.ClickedCh:
			cfg := t.bot.store.Update(func(c config.RunConfig) config.RunConfig {
				c.AutoPickup = !c.AutoPickup
				return c
			})
			setChecked(t.pickupItem, cfg.AutoPickup)
			t.bot.SaveState()
		case <-t.quitItem.ClickedCh:
			botlog.Info("Quit requested by user")
			t.Quit()
			return
		}
	}
}

// handleRadio calls apply on every click of item until the tray exits.
func (t *TrayApp) handleRadio(item *systray.MenuItem, apply func()) {
	for {
		select {
		case <-t.done:
			return
		case <-item.ClickedCh:
			apply()
			t.updateCheckmarks()
			t.bot.SaveState()
		}
	}
}

func (t *TrayApp) setStrategy(s config.Strategy) {
	t.bot.store.Update(func(c config.RunConfig) config.RunConfig {
		c.Strategy = s
		return c
	})
	botlog.Info("Strategy changed to: %s", s)
}

func (t *TrayApp) setFrameRate(fps int) {
	t.bot.store.Update(func(c config.RunConfig) config.RunConfig {
		c.FrameRate = fps
		return c
	})
	botlog.Info("Frame rate changed to: %d fps", fps)
}

func (t *TrayApp) setPotionThreshold(pct int) {
	t.bot.store.Update(func(c config.RunConfig) config.RunConfig {
		c.AutoPotionThreshold = pct
		return c
	})
	botlog.Info("Potion threshold changed to: %d%%", pct)
}

// updateCheckmarks makes every radio group reflect the current config.
func (t *TrayApp) updateCheckmarks() {
	cfg := t.bot.store.Load()
	for i, s := range config.Strategies {
		setChecked(t.strategyItems[i], s == cfg.Strategy)
	}
	for i, fps := range trayFrameRates {
		setChecked(t.frameRateItems[i], fps == cfg.FrameRate)
	}
	for i, pct := range trayThresholds {
		setChecked(t.potionItems[i], pct == cfg.AutoPotionThreshold)
	}
	setChecked(t.pickupItem, cfg.AutoPickup)
}

func (t *TrayApp) statusLoop() {
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

// refresh updates the status line and which lifecycle items are enabled.
func (t *TrayApp) refresh() {
	stats := t.bot.ctrl.Stats()
	t.statusItem.SetTitle(statusLine(stats, time.Now()))

	start, pause, stop := lifecycleEnabled(stats.Status)
	setEnabled(t.startItem, start)
	setEnabled(t.pauseItem, pause)
	setEnabled(t.stopItem, stop)
	if stats.Status == control.StatusPaused {
		t.startItem.SetTitle("Resume")
	} else {
		t.startItem.SetTitle("Start")
	}
}

// statusLine renders the tray status text for stats at now.
func statusLine(s control.Stats, now time.Time) string {
	switch s.Status {
	case control.StatusIdle, control.StatusInitializing, control.StatusError:
		return fmt.Sprintf("Status: %s", s.Status)
	}
	uptime := time.Duration(0)
	if !s.StartedAt.IsZero() {
		uptime = now.Sub(s.StartedAt)
	}
	return fmt.Sprintf("Status: %s | %d frames | %.1f fps | %s", s.Status, s.FrameCount, s.FPS, FormatDuration(uptime))
}

// lifecycleEnabled reports which of Start, Pause and Stop make sense in
// status st.
func lifecycleEnabled(st control.Status) (start, pause, stop bool) {
	switch st {
	case control.StatusRunning:
		return false, true, true
	case control.StatusPaused:
		return true, false, true
	case control.StatusInitializing:
		return false, false, true
	case control.StatusError:
		return true, false, true
	}
	return true, false, false
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}
