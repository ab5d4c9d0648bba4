// Package control drives the capture -> infer -> decode -> decide -> dispatch
// loop and owns the run state machine.
//
// The Controller is built from handles so that every collaborator can be
// replaced by a fake:
//   - FrameSource: the latest-frame slot (capture.Source)
//   - Engine: the inference scheduler (inference.Scheduler)
//   - Decider: the decision policy (policy.Policy)
//   - Executor: the action dispatcher (dispatch.Dispatcher)
//
// Failure handling per tick:
//   - no frame: skip the tick, retry after NoFrameDelay
//   - inference error: log, count, retry after the action delay
//   - panic: recover, log, count, retry after PanicDelay; three in a row
//     raise a warning
//
// Only initialization failure changes the run status (to Error).
package control

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/decoder"
	"gamepilot/internal/game"
)

// Loop delays.
const (
	NoFrameDelay = 50 * time.Millisecond
	PanicDelay   = 100 * time.Millisecond

	// PanicWarnThreshold consecutive panics raise a warning.
	PanicWarnThreshold = 3

	// progressEvery ticks an info line is logged.
	progressEvery = 100
)

// ErrBusy is returned by RunManual while the loop is running.
var ErrBusy = errors.New("control: loop is running")

// FrameSource provides the newest captured frame.
type FrameSource interface {
	Start(ctx context.Context)
	Stop()
	Latest() *game.Frame
	Available() bool
}

// Engine runs inference.
type Engine interface {
	Init(ctx context.Context) error
	Infer(ctx context.Context, frame *game.Frame) ([]float32, error)
	Release()
}

// Decider chooses the actions for a state.
type Decider interface {
	Decide(state *game.GameState, cfg config.RunConfig) []game.Action
}

// Executor performs actions on the input surface.
type Executor interface {
	Execute(ctx context.Context, action game.Action) bool
	SetScreen(width, height int)
}

// EnrichFunc decorates a decoded state, e.g. with learned skill names.
type EnrichFunc func(game.GameState) game.GameState

// Options configures a Controller.
type Options struct {
	Frames   FrameSource
	Engine   Engine
	Policy   Decider
	Executor Executor
	Config   *config.Store
	Enrich   EnrichFunc
	Logger   *log.Logger
}

// Controller is the control orchestrator. All methods are safe for
// concurrent use.
type Controller struct {
	frames   FrameSource
	engine   Engine
	policy   Decider
	executor Executor
	config   *config.Store
	enrich   EnrichFunc
	logger   *log.Logger

	mu          sync.Mutex
	status      Status
	initialized bool
	lastErr     error
	cancel      context.CancelFunc
	done        chan struct{}

	listenMu     sync.RWMutex
	onStatus     []func(Status)
	onTick       []func(Stats)
	stats        recorder
	lastState    atomic.Pointer[game.GameState]
	lastActions  atomic.Pointer[[]game.Action]
	manualActive atomic.Bool
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Config == nil {
		opts.Config = config.NewStore(config.DefaultRunConfig())
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Controller{
		frames:   opts.Frames,
		engine:   opts.Engine,
		policy:   opts.Policy,
		executor: opts.Executor,
		config:   opts.Config,
		enrich:   opts.Enrich,
		logger:   opts.Logger.WithPrefix("control"),
	}
}

// Config returns the shared run configuration.
func (c *Controller) Config() *config.Store {
	return c.config
}

// Status returns the current run status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the initialization error that put the controller in Error.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stats returns a statistics snapshot.
func (c *Controller) Stats() Stats {
	s := c.stats.snapshot()
	s.Status = c.Status()
	return s
}

// LastState returns the most recently decoded state, or nil.
func (c *Controller) LastState() *game.GameState {
	return c.lastState.Load()
}

// LastActions returns the actions decided on the most recent tick.
func (c *Controller) LastActions() []game.Action {
	if p := c.lastActions.Load(); p != nil {
		return *p
	}
	return nil
}

// OnStatusChange registers fn to be called after every status transition.
// Callbacks run on the goroutine that caused the transition.
func (c *Controller) OnStatusChange(fn func(Status)) {
	c.listenMu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.listenMu.Unlock()
}

// OnTick registers fn to be called with the stats after every completed tick.
func (c *Controller) OnTick(fn func(Stats)) {
	c.listenMu.Lock()
	c.onTick = append(c.onTick, fn)
	c.listenMu.Unlock()
}

func (c *Controller) notifyStatus(s Status) {
	c.listenMu.RLock()
	fns := c.onStatus
	c.listenMu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Controller) notifyTick(s Stats) {
	c.listenMu.RLock()
	fns := c.onTick
	c.listenMu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Start initializes if needed and starts the loop.
//
// Behavior by status:
//   - Running, Initializing: no-op
//   - Paused: resumes without reinitializing
//   - Idle, Error: initializes (loads the engine, starts capture); on
//     failure the status becomes Error and the error is returned
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusRunning || c.status == StatusInitializing {
		c.mu.Unlock()
		return nil
	}

	if !c.initialized {
		c.status = StatusInitializing
		c.lastErr = nil
		c.mu.Unlock()
		c.notifyStatus(StatusInitializing)

		if err := c.initialize(ctx); err != nil {
			return err
		}

		c.mu.Lock()
		if c.status != StatusInitializing {
			// stopped while initializing
			c.mu.Unlock()
			c.frames.Stop()
			c.engine.Release()
			return nil
		}
		c.initialized = true
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	prev := c.done
	c.cancel = cancel
	c.done = make(chan struct{})
	c.status = StatusRunning
	go c.loop(loopCtx, c.done, prev)
	c.mu.Unlock()

	c.logger.Info("control started", "run", c.stats.snapshot().RunID)
	c.notifyStatus(StatusRunning)
	return nil
}

func (c *Controller) initialize(ctx context.Context) error {
	start := time.Now()
	if err := c.engine.Init(ctx); err != nil {
		c.mu.Lock()
		// a Stop during Init already settled the status at Idle
		live := c.status == StatusInitializing
		if live {
			c.status = StatusError
			c.lastErr = err
		}
		c.mu.Unlock()
		c.logger.Error("initialization failed", "err", err)
		if live {
			c.notifyStatus(StatusError)
		}
		return fmt.Errorf("control: initialize: %w", err)
	}

	c.stats.reset(uuid.NewString(), start)
	c.lastState.Store(nil)
	c.frames.Start(context.WithoutCancel(ctx))
	c.logger.Info("initialized", "took", time.Since(start), "config", fmt.Sprintf("%+v", c.config.Load()))
	return nil
}

// Pause stops starting new ticks. The in-flight tick finishes its
// inference; actions not yet dispatched are abandoned. No-op unless Running.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.status != StatusRunning {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	c.status = StatusPaused
	c.mu.Unlock()

	c.logger.Info("control paused")
	c.notifyStatus(StatusPaused)
}

// Stop cancels the loop, waits for it to exit, stops capture and releases
// the engine before returning. Valid from any status.
func (c *Controller) Stop() {
	c.mu.Lock()
	prev := c.status
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	done := c.done
	c.done = nil
	wasInit := c.initialized
	c.initialized = false
	c.status = StatusIdle
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	if wasInit {
		c.frames.Stop()
	}
	c.engine.Release()

	c.logger.Info("control stopped", "from", prev, "frames", c.stats.snapshot().FrameCount)
	if prev != StatusIdle {
		c.notifyStatus(StatusIdle)
	}
}

// RunManual executes actions directly when the loop is not running.
// Returns the number of actions that succeeded.
func (c *Controller) RunManual(ctx context.Context, actions []game.Action) (int, error) {
	if c.Status() == StatusRunning {
		return 0, ErrBusy
	}
	if !c.manualActive.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer c.manualActive.Store(false)

	ok := 0
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		if c.executor.Execute(ctx, a) {
			ok++
		}
	}
	c.logger.Info("manual actions", "actions", game.Describe(actions), "ok", ok)
	return ok, ctx.Err()
}

func (c *Controller) loop(ctx context.Context, done chan struct{}, prev chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	consecutive := 0
	for ctx.Err() == nil {
		delay, panicked := c.safeTick(ctx)
		if panicked {
			consecutive++
			if consecutive >= PanicWarnThreshold {
				c.logger.Warn("control loop keeps failing", "consecutive", consecutive)
			}
		} else {
			consecutive = 0
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (c *Controller) safeTick(ctx context.Context) (delay time.Duration, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.panicked()
			c.logger.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
			delay, panicked = PanicDelay, true
		}
	}()
	return c.tick(ctx), false
}

// tick runs one pipeline pass and returns the delay before the next.
func (c *Controller) tick(ctx context.Context) time.Duration {
	cfg := c.config.Load()
	start := time.Now()

	frame := c.frames.Latest()
	if frame == nil {
		if !c.frames.Available() {
			c.logger.Debug("capture unavailable")
		}
		return NoFrameDelay
	}

	// pause and stop do not interrupt an inference already in flight
	vec, err := c.engine.Infer(context.WithoutCancel(ctx), frame)
	inferTime := time.Since(start)
	if err != nil {
		c.stats.inferenceFailed()
		c.logger.Warn("inference failed", "err", err)
		return cfg.ActionDelay()
	}

	state := decoder.DecodeFrame(vec, frame)
	if c.enrich != nil {
		state = c.enrich(state)
	}
	c.lastState.Store(&state)
	c.executor.SetScreen(frame.ScreenWidth, frame.ScreenHeight)

	actions := c.policy.Decide(&state, cfg)
	botlog.Decision(c.logger, &state, actions)
	c.lastActions.Store(&actions)

	actStart := time.Now()
	failed := 0
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		if !c.executor.Execute(ctx, a) {
			failed++
		}
	}
	actTime := time.Since(actStart)
	c.stats.dispatchFailed(failed)

	s := c.stats.tick(inferTime, actTime, time.Since(start), state.Screen.String())
	if s.FrameCount%progressEvery == 0 {
		c.logger.Info("progress", "frame", s.FrameCount, "inference", inferTime, "action", actTime)
	}
	s.Status = StatusRunning
	c.notifyTick(s)

	return cfg.ActionDelay()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
