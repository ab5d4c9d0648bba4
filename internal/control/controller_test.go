package control

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/decoder"
	"gamepilot/internal/game"
	"gamepilot/internal/policy"
)

type fakeFrames struct {
	starts atomic.Int32
	stops  atomic.Int32
	frame  atomic.Pointer[game.Frame]
}

func (f *fakeFrames) Start(context.Context) { f.starts.Add(1) }
func (f *fakeFrames) Stop()                 { f.stops.Add(1) }
func (f *fakeFrames) Latest() *game.Frame   { return f.frame.Load() }
func (f *fakeFrames) Available() bool       { return true }

type fakeEngine struct {
	initErr  error
	initGate chan struct{} // when set, Init blocks until it is closed
	inits    atomic.Int32
	releases atomic.Int32
	calls    atomic.Int32

	mu  sync.Mutex
	out []float32
	err error
}

func (e *fakeEngine) Init(context.Context) error {
	e.inits.Add(1)
	if e.initGate != nil {
		<-e.initGate
	}
	return e.initErr
}

func (e *fakeEngine) Infer(context.Context, *game.Frame) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out, e.err
}

func (e *fakeEngine) Release() { e.releases.Add(1) }

func (e *fakeEngine) set(out []float32, err error) {
	e.mu.Lock()
	e.out, e.err = out, err
	e.mu.Unlock()
}

type fakeExecutor struct {
	mu      sync.Mutex
	actions []game.Action
	screens [][2]int
	fail    bool
}

func (x *fakeExecutor) Execute(_ context.Context, a game.Action) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.actions = append(x.actions, a)
	return !x.fail
}

func (x *fakeExecutor) SetScreen(w, h int) {
	x.mu.Lock()
	x.screens = append(x.screens, [2]int{w, h})
	x.mu.Unlock()
}

func (x *fakeExecutor) recorded() []game.Action {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]game.Action(nil), x.actions...)
}

// gatedExecutor blocks the first action until release is closed.
type gatedExecutor struct {
	fakeExecutor
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (x *gatedExecutor) Execute(ctx context.Context, a game.Action) bool {
	ok := x.fakeExecutor.Execute(ctx, a)
	x.once.Do(func() {
		close(x.entered)
		<-x.release
	})
	return ok
}

type fixedPolicy []game.Action

func (p fixedPolicy) Decide(*game.GameState, config.RunConfig) []game.Action {
	return append([]game.Action(nil), p...)
}

type panicPolicy struct{ calls atomic.Int32 }

func (p *panicPolicy) Decide(*game.GameState, config.RunConfig) []game.Action {
	p.calls.Add(1)
	panic("boom")
}

type harness struct {
	ctrl   *Controller
	frames *fakeFrames
	engine *fakeEngine
	exec   *fakeExecutor
}

func battleVector() []float32 {
	return decoder.NewBuilder(256).
		Screen(game.ScreenBattle).
		Player(0.8, 0.8, 0.5, 0.5).
		Enemy(0, 0.6, 0.5, 0.1, true, 0.9).
		Skill(1, true, 0).
		Vector()
}

func newHarness(t *testing.T, decider Decider) *harness {
	t.Helper()
	h := &harness{
		frames: &fakeFrames{},
		engine: &fakeEngine{out: battleVector()},
		exec:   &fakeExecutor{},
	}
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	h.frames.frame.Store(game.NewFrame(img, 1000, 2000, time.Now(), 1))

	if decider == nil {
		decider = policy.New(policy.Config{Rand: rand.New(rand.NewSource(1)), Logger: botlog.Discard()})
	}
	cfg := config.DefaultRunConfig()
	cfg.ActionDelayMs = config.MinActionDelayMs
	h.ctrl = New(Options{
		Frames:   h.frames,
		Engine:   h.engine,
		Policy:   decider,
		Executor: h.exec,
		Config:   config.NewStore(cfg),
		Logger:   botlog.Discard(),
	})
	t.Cleanup(h.ctrl.Stop)
	return h
}

func TestPauseWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Pause()
	assert.Equal(t, StatusIdle, h.ctrl.Status())
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.Equal(t, StatusRunning, h.ctrl.Status())
	assert.Equal(t, int32(1), h.engine.inits.Load())
	assert.Equal(t, int32(1), h.frames.starts.Load())
}

func TestStopReleasesEngine(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Stats().FrameCount > 0 }, time.Second, 5*time.Millisecond)

	h.ctrl.Stop()
	assert.Equal(t, StatusIdle, h.ctrl.Status())
	assert.Equal(t, int32(1), h.engine.releases.Load())
	assert.Equal(t, int32(1), h.frames.stops.Load())

	// no ticks after Stop returns
	calls := h.engine.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, h.engine.calls.Load())

	// restart reinitializes
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, int32(2), h.engine.inits.Load())
}

func TestStopFromIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Stop()
	assert.Equal(t, StatusIdle, h.ctrl.Status())
	assert.Equal(t, int32(1), h.engine.releases.Load())
	assert.Zero(t, h.frames.stops.Load())
}

func TestInitFailureEntersError(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.initErr = errors.New("model corrupt")

	var seen []Status
	var mu sync.Mutex
	h.ctrl.OnStatusChange(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, h.ctrl.Status())
	assert.ErrorContains(t, h.ctrl.Err(), "model corrupt")
	assert.Zero(t, h.frames.starts.Load())

	mu.Lock()
	assert.Equal(t, []Status{StatusInitializing, StatusError}, seen)
	mu.Unlock()

	// a fresh start retries initialization
	h.engine.initErr = nil
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, StatusRunning, h.ctrl.Status())
	assert.NoError(t, h.ctrl.Err())
}

func TestStopDuringFailingInitEndsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.initErr = errors.New("model corrupt")
	h.engine.initGate = make(chan struct{})

	var seen []Status
	var mu sync.Mutex
	h.ctrl.OnStatusChange(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(context.Background()) }()
	require.Eventually(t, func() bool { return h.engine.inits.Load() == 1 }, time.Second, time.Millisecond)

	h.ctrl.Stop()
	assert.Equal(t, StatusIdle, h.ctrl.Status())

	close(h.engine.initGate)
	assert.Error(t, <-errc)
	assert.Equal(t, StatusIdle, h.ctrl.Status())
	assert.NoError(t, h.ctrl.Err())

	mu.Lock()
	assert.Equal(t, []Status{StatusInitializing, StatusIdle}, seen)
	mu.Unlock()
}

func TestPauseAbandonsRemainingActions(t *testing.T) {
	h := newHarness(t, fixedPolicy{
		game.Tap{X: 1, Y: 1},
		game.Tap{X: 2, Y: 2},
		game.Tap{X: 3, Y: 3},
	})
	exec := &gatedExecutor{entered: make(chan struct{}), release: make(chan struct{})}
	h.ctrl.executor = exec

	require.NoError(t, h.ctrl.Start(context.Background()))
	select {
	case <-exec.entered:
	case <-time.After(time.Second):
		t.Fatal("first action never dispatched")
	}

	h.ctrl.Pause()
	close(exec.release)
	h.ctrl.Stop()

	assert.Equal(t, []game.Action{game.Tap{X: 1, Y: 1}}, exec.recorded())
}

func TestLoopDispatchesDecidedActions(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool {
		for _, a := range h.exec.recorded() {
			if s, ok := a.(game.UseSkill); ok && s.Index == 1 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	state := h.ctrl.LastState()
	require.NotNil(t, state)
	assert.Equal(t, game.ScreenBattle, state.Screen)
	require.Len(t, state.Enemies, 1)
	assert.Equal(t, game.NewPoint(600, 1000), state.Enemies[0].Position)
	assert.NotEmpty(t, h.ctrl.LastActions())

	s := h.ctrl.Stats()
	assert.Equal(t, StatusRunning, s.Status)
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "battle", s.LastScreen)
	assert.Positive(t, s.FPS)

	h.exec.mu.Lock()
	assert.Equal(t, [2]int{1000, 2000}, h.exec.screens[0])
	h.exec.mu.Unlock()
}

func TestInferenceFailureIsCounted(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.set(nil, errors.New("bad shape"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Stats().InferenceFailures >= 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.exec.recorded())
	assert.Zero(t, h.ctrl.Stats().FrameCount)
	assert.Equal(t, StatusRunning, h.ctrl.Status())
}

func TestNoFrameSkipsTick(t *testing.T) {
	h := newHarness(t, nil)
	h.frames.frame.Store(nil)
	require.NoError(t, h.ctrl.Start(context.Background()))

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, h.engine.calls.Load())
	assert.Equal(t, StatusRunning, h.ctrl.Status())
}

func TestPanicIsRecovered(t *testing.T) {
	p := &panicPolicy{}
	h := newHarness(t, p)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Stats().Panics >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusRunning, h.ctrl.Status())
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Stats().FrameCount > 0 }, time.Second, 5*time.Millisecond)

	h.ctrl.Pause()
	assert.Equal(t, StatusPaused, h.ctrl.Status())
	time.Sleep(30 * time.Millisecond)
	calls := h.engine.calls.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, calls, h.engine.calls.Load())

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, StatusRunning, h.ctrl.Status())
	assert.Equal(t, int32(1), h.engine.inits.Load())
	require.Eventually(t, func() bool { return h.engine.calls.Load() > calls }, time.Second, 5*time.Millisecond)
}

func TestRunManual(t *testing.T) {
	h := newHarness(t, nil)
	n, err := h.ctrl.RunManual(context.Background(), []game.Action{
		game.Tap{X: 1, Y: 2, Duration: time.Millisecond},
		game.UseItem{Index: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, h.ctrl.Start(context.Background()))
	_, err = h.ctrl.RunManual(context.Background(), []game.Action{game.UseItem{Index: 0}})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestOnTickReceivesStats(t *testing.T) {
	h := newHarness(t, nil)
	var ticks atomic.Int32
	h.ctrl.OnTick(func(s Stats) {
		if s.FrameCount > 0 && s.Status == StatusRunning {
			ticks.Add(1)
		}
	})
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRecorderRollingWindow(t *testing.T) {
	var r recorder
	r.reset("run", time.Unix(0, 0))

	for i := 0; i < StatsWindow; i++ {
		r.tick(10*time.Millisecond, 2*time.Millisecond, 20*time.Millisecond, "battle")
	}
	s := r.snapshot()
	assert.InDelta(t, 10, s.AvgInferenceMs, 1e-9)
	assert.InDelta(t, 2, s.AvgActionMs, 1e-9)
	assert.InDelta(t, 50, s.FPS, 1e-9)

	// a full window of 20ms samples replaces the 10ms ones
	for i := 0; i < StatsWindow; i++ {
		s = r.tick(20*time.Millisecond, 0, 0, "shop")
	}
	assert.InDelta(t, 20, s.AvgInferenceMs, 1e-9)
	assert.Zero(t, s.AvgActionMs)
	assert.Zero(t, s.FPS)
	assert.Equal(t, uint64(2*StatsWindow), s.FrameCount)
	assert.Equal(t, "shop", s.LastScreen)

	r.inferenceFailed()
	r.dispatchFailed(3)
	r.panicked()
	s = r.snapshot()
	assert.Equal(t, uint64(1), s.InferenceFailures)
	assert.Equal(t, uint64(3), s.DispatchFailures)
	assert.Equal(t, uint64(1), s.Panics)
}

func TestStatusText(t *testing.T) {
	b, err := StatusPaused.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "paused", string(b))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("error")))
	assert.Equal(t, StatusError, s)
	assert.Error(t, s.UnmarshalText([]byte("nope")))
}
