// Package main - bot.go
//
// Bot wires every component of the pipeline for the run command.
//
// Component graph:
//
//	surface (Browser | Desktop)
//	   ├─ capture.Source ──────────┐
//	   └─ dispatch.Dispatcher ─────┤
//	inference.Scheduler ───────────┼─ control.Controller ─┬─ api.Server (optional)
//	policy.Policy ─────────────────┤                      ├─ telemetry.Publisher (optional)
//	knowledge.Store + Memory ──────┘ (enrich, ranking)    ├─ TrayApp (optional)
//	                                                      └─ debug overlay (optional, browser)
//
// Initialization Process:
//  1. Load the configuration file (defaults when missing or corrupt)
//  2. Open the knowledge store and position memory (optional: failures only
//     disable enrichment)
//  3. Pick the inference backend (remote, model file, or simulation)
//  4. Build the surface, capture source, dispatcher and policy
//  5. Re-rank the skill priority from learned effect types
//  6. Create the controller and hook telemetry, the overlay and the tray to
//     its events
//
// Shutdown (signal, tray Quit or API-less run ending):
//  1. Stop the controller (waits for the loop, releases the model)
//  2. Save state: run config and browser cookies back to the config file,
//     position memory to its JSON file
//  3. Close browser, knowledge store, redis client and HTTP server
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gamepilot/internal/api"
	"gamepilot/internal/botlog"
	"gamepilot/internal/capture"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
	"gamepilot/internal/dispatch"
	"gamepilot/internal/game"
	"gamepilot/internal/inference"
	"gamepilot/internal/knowledge"
	"gamepilot/internal/platform"
	"gamepilot/internal/platform/desktop"
	"gamepilot/internal/policy"
	"gamepilot/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// surface is a platform handle usable for both capture and input.
type surface interface {
	capture.Surface
	dispatch.InputSurface
}

// BotOptions are the run command's switches.
type BotOptions struct {
	ConfigPath string
	Seed       int64
	// AutoStart starts the loop as soon as the surface is ready.
	AutoStart bool
	Tray      bool
	// Persist is the config file as loaded, without run flag overrides.
	// SaveState writes the run config and cookies back onto it. Nil means
	// the file could not be read and is never overwritten.
	Persist *config.File
}

// Bot owns the wired pipeline for one process.
type Bot struct {
	opts   BotOptions
	data   config.File // effective for this run, flags applied
	saved  *config.File
	logger *log.Logger

	store      *config.Store
	browser    *platform.Browser // nil on desktop
	surface    surface
	source     *capture.Source
	scheduler  *inference.Scheduler
	dispatcher *dispatch.Dispatcher
	policy     *policy.Policy
	catalog    *knowledge.Store // nil when the catalog could not be opened
	memory     *knowledge.Memory
	ctrl       *control.Controller
	api        *api.Server
	telemetry  *telemetry.Publisher
	tray       *TrayApp

	overlayBusy atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	saveMu       sync.Mutex
	shutdownOnce sync.Once
}

// NewBot creates and wires every component. Nothing is started.
func NewBot(data config.File, opts BotOptions) (*Bot, error) {
	logger := botlog.Named("bot")
	logger.Info("initializing bot components")

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		opts:   opts,
		data:   data,
		saved:  opts.Persist,
		logger: logger,
		store:  config.NewStore(data.Run),
		ctx:    ctx,
		cancel: cancel,
	}

	b.openKnowledge()

	switch data.Platform.Kind {
	case "desktop":
		b.surface = desktop.New(botlog.Logger())
	case "browser", "":
		b.browser = platform.NewBrowser(platform.BrowserConfig{
			URL:      data.Platform.URL,
			Width:    data.Platform.Width,
			Height:   data.Platform.Height,
			Headless: data.Platform.Headless,
			Logger:   botlog.Logger(),
		})
		b.surface = b.browser
	default:
		cancel()
		b.closeKnowledge()
		return nil, fmt.Errorf("unknown platform %q (want browser or desktop)", data.Platform.Kind)
	}

	modelPath, err := config.ExpandPath(data.Model.Path)
	if err != nil {
		modelPath = data.Model.Path
	}
	backend := inference.SelectBackend(inference.Options{
		ModelPath:     modelPath,
		RemoteURL:     data.Model.RemoteURL,
		RemoteTimeout: time.Duration(data.Model.RemoteTimeout) * time.Millisecond,
	})
	b.scheduler = inference.NewScheduler(backend, botlog.Logger())
	logger.Info("inference backend selected", "backend", b.scheduler.Backend())

	b.source = capture.NewSource(capture.SourceConfig{
		Surface: b.surface,
		Config:  b.store,
		Logger:  botlog.Logger(),
	})
	b.dispatcher = dispatch.New(b.surface, data.Platform.Width, data.Platform.Height, botlog.Logger())
	b.learnPositions()

	pcfg := policy.Config{Logger: botlog.Logger()}
	if opts.Seed != 0 {
		pcfg.Rand = rand.New(rand.NewSource(opts.Seed))
	}
	b.policy = policy.New(pcfg)
	b.rankSkills()

	b.ctrl = control.New(control.Options{
		Frames:   b.source,
		Engine:   b.scheduler,
		Policy:   b.policy,
		Executor: b.dispatcher,
		Config:   b.store,
		Enrich:   b.enrich,
		Logger:   botlog.Logger(),
	})
	b.store.OnChange(func(c config.RunConfig) {
		logger.Info("run config changed", "config", fmt.Sprintf("%+v", c))
	})

	if data.Telemetry.RedisAddr != "" {
		b.telemetry = telemetry.New(data.Telemetry, botlog.Logger())
		b.ctrl.OnTick(b.telemetry.OnTick)
		b.ctrl.OnStatusChange(func(control.Status) {
			b.telemetry.OnStatus(b.ctrl.Stats())
		})
	}

	if data.Platform.Overlay {
		if b.browser != nil {
			b.hookOverlay()
		} else {
			logger.Warn("debug overlay needs the browser platform, ignoring")
		}
	}

	if data.API.Enabled {
		var skills api.SkillCatalog
		if b.catalog != nil {
			skills = b.catalog
		}
		b.api = api.New(api.Options{
			Controller: b.ctrl,
			Skills:     skills,
			Logger:     botlog.Logger(),
		})
	}

	if opts.Tray {
		b.tray = NewTrayApp(b)
	}

	logger.Info("bot components initialized")
	return b, nil
}

// openKnowledge opens the catalog and the position memory. Failures are
// logged; the bot runs without enrichment.
func (b *Bot) openKnowledge() {
	if path, err := config.ExpandPath(b.data.Knowledge.DBPath); err == nil {
		catalog, err := knowledge.Open(path)
		if err != nil {
			b.logger.Warn("knowledge store unavailable", "err", err)
		} else {
			b.catalog = catalog
		}
	}

	path, err := config.ExpandPath(b.data.Knowledge.MemoryPath)
	if err != nil {
		path = b.data.Knowledge.MemoryPath
	}
	b.memory = knowledge.NewMemory(path)
	if err := b.memory.Load(); err != nil {
		b.logger.Warn("position memory unreadable, starting empty", "err", err)
		b.memory = knowledge.NewMemory(path)
	}
}

func (b *Bot) closeKnowledge() {
	if b.catalog != nil {
		if err := b.catalog.Close(); err != nil {
			b.logger.Warn("failed to close knowledge store", "err", err)
		}
	}
}

// learnPositions copies remembered skill button positions into the
// dispatcher's layout overrides.
func (b *Bot) learnPositions() {
	for i := range len(dispatch.DefaultSkillAnchors) {
		if e, ok := b.memory.Find(knowledge.SkillSlotID(i)); ok {
			b.dispatcher.LearnSkillPosition(i, e.Point())
			b.logger.Debug("learned skill position", "slot", i, "at", e.Point())
		}
	}
}

// rankSkills reorders the policy's skill priority by learned effect type.
// A catalog with a non-numeric skill id is a configuration error; the
// default order is kept.
func (b *Bot) rankSkills() {
	if b.catalog == nil {
		return
	}
	effects, err := b.catalog.Effects()
	if err != nil {
		b.logger.Warn("cannot read skill effects", "err", err)
		return
	}
	if len(effects) == 0 {
		return
	}
	if err := b.policy.RankByEffect(effects); err != nil {
		b.logger.Error("skill ranking rejected, keeping default priority", "err", err)
		return
	}
	b.logger.Info("skill priority ranked by effect", "priority", b.policy.Priority())
}

// enrich applies learned skill names and positions to a decoded state.
func (b *Bot) enrich(state game.GameState) game.GameState {
	if b.catalog == nil {
		return state
	}
	enriched, err := b.catalog.Enrich(state, b.dispatcher.SkillPosition)
	if err != nil {
		b.logger.Debug("enrich failed", "err", err)
		return state
	}
	return enriched
}

// Start launches the surface and the optional services. The loop itself is
// started only with AutoStart (or later from the tray or API).
func (b *Bot) Start() {
	if b.api != nil {
		SafeGo("api", func() {
			if err := b.api.Start(b.data.API.Addr); err != nil {
				b.logger.Error("api server stopped", "err", err)
			}
		})
	}

	if b.telemetry != nil {
		pingCtx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
		if err := b.telemetry.Ping(pingCtx); err != nil {
			b.logger.Warn("redis unreachable, telemetry will keep retrying", "err", err)
		}
		cancel()
		SafeGo("telemetry", func() { b.telemetry.Run(b.ctx) })
	}

	// Browser startup can take up to a minute; never block the tray on it.
	SafeGo("surface", func() {
		if b.browser != nil {
			b.logger.Info("starting browser", "url", b.data.Platform.URL)
			if err := b.browser.Start(b.ctx, b.data.Cookies); err != nil {
				b.logger.Error("failed to start browser", "err", err)
				return
			}
			b.logger.Info("browser is now ready")
		}
		if b.opts.AutoStart {
			if err := b.ctrl.Start(b.ctx); err != nil {
				b.logger.Error("failed to start control loop", "err", err)
			}
		}
	})
}

// SaveState writes the run config and cookies back to the config file and
// the position memory to its own file. Every other section of the file is
// written as it was loaded.
func (b *Bot) SaveState() {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	if b.saved == nil {
		b.logger.Warn("config file was not loaded, not overwriting it", "path", b.opts.ConfigPath)
	} else {
		b.saved.Run = b.store.Load()
		if b.browser != nil {
			if cookies, err := b.browser.Cookies(); err == nil {
				b.saved.Cookies = cookies
			} else {
				b.logger.Debug("cookies not refreshed", "err", err)
			}
		}
		if err := config.SaveFile(b.opts.ConfigPath, *b.saved); err != nil {
			b.logger.Error("failed to save config", "err", err)
		} else {
			b.logger.Info("state saved", "path", b.opts.ConfigPath)
		}
	}
	if err := b.memory.Save(); err != nil {
		b.logger.Error("failed to save position memory", "err", err)
	}
}

// Shutdown stops everything. Safe to call more than once.
func (b *Bot) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.logger.Info("shutting down")
		b.ctrl.Stop()
		b.SaveState()
		b.cancel()

		if b.api != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := b.api.Shutdown(ctx); err != nil {
				b.logger.Warn("api shutdown", "err", err)
			}
			cancel()
		}
		if b.telemetry != nil {
			if err := b.telemetry.Close(); err != nil {
				b.logger.Warn("telemetry close", "err", err)
			}
		}
		if b.browser != nil {
			b.browser.Close()
		}
		b.closeKnowledge()
		b.logger.Info("shutdown complete")
	})
}

// Run starts the bot and blocks until SIGINT/SIGTERM or, with a tray,
// until Quit is chosen.
func (b *Bot) Run() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	b.Start()

	if b.tray != nil {
		SafeGo("signals", func() {
			select {
			case sig := <-sigChan:
				b.logger.Info("signal received, shutting down gracefully", "signal", sig)
				b.tray.Quit()
			case <-b.ctx.Done():
			}
		})
		// blocks until the tray exits; onExit performs the shutdown
		b.tray.Run()
		b.Shutdown()
		return
	}

	select {
	case sig := <-sigChan:
		b.logger.Info("signal received, shutting down gracefully", "signal", sig)
	case <-b.ctx.Done():
	}
	b.Shutdown()
}

var runFlags struct {
	platform  string
	api       bool
	addr      string
	tray      bool
	autostart bool
	headless  bool
	overlay   bool
	redis     string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control loop",
	Long: `Start the capture -> inference -> decode -> decide -> dispatch loop.

Flags override the configuration file for this run only; the run config
(frame rate, strategy, ...) is saved back on exit.

Examples:
  gamepilot run
  gamepilot run --platform desktop --tray=false
  gamepilot run --api --addr 127.0.0.1:8765 --autostart=false
  gamepilot run --redis 127.0.0.1:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(flagConfig)
		var persist *config.File
		if err != nil {
			botlog.Error("Failed to load config %s: %v, running on defaults without saving", flagConfig, err)
			loaded = config.DefaultFile()
		} else {
			persist = &loaded
		}

		data := applyRunFlags(loaded, cmd.Flags())

		botlog.Info("=== gamepilot started (platform %s) ===", data.Platform.Kind)
		bot, err := NewBot(data, BotOptions{
			ConfigPath: flagConfig,
			Seed:       flagSeed,
			AutoStart:  runFlags.autostart,
			Tray:       runFlags.tray,
			Persist:    persist,
		})
		if err != nil {
			return err
		}
		bot.Run()
		botlog.Info("=== gamepilot shutdown ===")
		return nil
	},
}

// applyRunFlags returns a copy of f with the run command's explicitly set
// flags applied. f itself is left as loaded.
func applyRunFlags(f config.File, flags *pflag.FlagSet) config.File {
	if flags.Changed("platform") {
		f.Platform.Kind = runFlags.platform
	}
	if flags.Changed("headless") {
		f.Platform.Headless = runFlags.headless
	}
	if flags.Changed("overlay") {
		f.Platform.Overlay = runFlags.overlay
	}
	if flags.Changed("api") {
		f.API.Enabled = runFlags.api
	}
	if flags.Changed("addr") {
		f.API.Addr = runFlags.addr
	}
	if flags.Changed("redis") {
		f.Telemetry.RedisAddr = runFlags.redis
	}
	return f
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.platform, "platform", "browser", "Surface: browser or desktop")
	f.BoolVar(&runFlags.api, "api", false, "Serve the HTTP control API")
	f.StringVar(&runFlags.addr, "addr", "127.0.0.1:8765", "HTTP API listen address")
	f.BoolVar(&runFlags.tray, "tray", true, "Show the system tray menu")
	f.BoolVar(&runFlags.autostart, "autostart", true, "Start the loop once the surface is ready")
	f.BoolVar(&runFlags.headless, "headless", false, "Run Chrome headless")
	f.BoolVar(&runFlags.overlay, "overlay", false, "Draw the decoded state over the page (browser only)")
	f.StringVar(&runFlags.redis, "redis", "", "Redis address for telemetry (empty disables)")
}
