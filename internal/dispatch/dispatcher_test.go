package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/game"
)

type recordingSurface struct {
	mu     sync.Mutex
	calls  []string
	reject map[string]bool
}

func (r *recordingSurface) record(call string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return !r.reject[call]
}

func (r *recordingSurface) Tap(_ context.Context, x, y int, d time.Duration) bool {
	return r.record(fmt.Sprintf("tap %d,%d %s", x, y, d))
}

func (r *recordingSurface) Swipe(_ context.Context, x1, y1, x2, y2 int, d time.Duration) bool {
	return r.record(fmt.Sprintf("swipe %d,%d->%d,%d %s", x1, y1, x2, y2, d))
}

func (r *recordingSurface) MultiTouch(_ context.Context, points []game.TouchPoint) bool {
	return r.record(fmt.Sprintf("multi %d", len(points)))
}

func (r *recordingSurface) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newDispatcher(s InputSurface) *Dispatcher {
	return New(s, 1000, 2000, botlog.Discard())
}

func TestMoveSwipesFromJoystick(t *testing.T) {
	s := &recordingSurface{}
	d := newDispatcher(s)
	ctx := context.Background()

	// Center (150, 1500), radius 200.
	require.True(t, d.Execute(ctx, game.Move{Direction: 0, Distance: 1}))
	require.True(t, d.Execute(ctx, game.Move{Direction: 90, Distance: 0.5}))
	require.True(t, d.Execute(ctx, game.Move{Direction: 180, Distance: 2}))

	assert.Equal(t, []string{
		"swipe 150,1500->350,1500 50ms",
		"swipe 150,1500->150,1400 50ms",
		"swipe 150,1500->-50,1500 50ms",
	}, s.Calls())
}

func TestUseSkill(t *testing.T) {
	s := &recordingSurface{}
	d := newDispatcher(s)
	ctx := context.Background()

	target := game.NewPoint(400, 300)
	require.True(t, d.Execute(ctx, game.UseSkill{Index: 0}))
	require.True(t, d.Execute(ctx, game.UseSkill{Index: 1, Target: &target}))
	assert.False(t, d.Execute(ctx, game.UseSkill{Index: 9}))

	d.LearnSkillPosition(9, game.NewPoint(10, 20))
	require.True(t, d.Execute(ctx, game.UseSkill{Index: 9}))

	assert.Equal(t, []string{
		"tap 850,1500 100ms",
		"swipe 750,1600->400,300 150ms",
		"tap 10,20 100ms",
	}, s.Calls())

	executed, failed := d.Counts()
	assert.Equal(t, uint64(4), executed)
	assert.Equal(t, uint64(1), failed)
}

func TestUseItem(t *testing.T) {
	s := &recordingSurface{}
	d := newDispatcher(s)

	require.True(t, d.Execute(context.Background(), game.UseItem{Index: 0}))
	require.True(t, d.Execute(context.Background(), game.UseItem{Index: 2}))
	assert.False(t, d.Execute(context.Background(), game.UseItem{Index: -1}))

	assert.Equal(t, []string{"tap 900,600 100ms", "tap 700,600 100ms"}, s.Calls())
}

func TestCompositeContinuesPastFailure(t *testing.T) {
	s := &recordingSurface{reject: map[string]bool{"tap 1,1 10ms": true}}
	d := newDispatcher(s)

	ok := d.Execute(context.Background(), game.Composite{Actions: []game.Action{
		game.Tap{X: 1, Y: 1, Duration: 10 * time.Millisecond},
		game.Tap{X: 2, Y: 2, Duration: 10 * time.Millisecond},
		game.MultiTouch{Points: []game.TouchPoint{{X: 1, Y: 1}, {X: 2, Y: 2}}},
	}})

	assert.False(t, ok)
	assert.Equal(t, []string{"tap 1,1 10ms", "tap 2,2 10ms", "multi 2"}, s.Calls())
}

func TestCompositeStopsOnCancel(t *testing.T) {
	s := &recordingSurface{}
	d := newDispatcher(s)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok := d.Execute(ctx, game.Composite{Actions: []game.Action{
		game.Tap{X: 1, Y: 1},
		game.Wait{Duration: 5 * time.Second},
		game.Tap{X: 2, Y: 2},
	}})

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"tap 1,1 0s"}, s.Calls())
}

func TestWaitBlocksForDuration(t *testing.T) {
	d := newDispatcher(&recordingSurface{})

	start := time.Now()
	require.True(t, d.Execute(context.Background(), game.Wait{Duration: 30 * time.Millisecond}))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSetScreenRescalesLayout(t *testing.T) {
	s := &recordingSurface{}
	d := newDispatcher(s)
	d.SetScreen(2000, 1000)
	d.SetScreen(0, 0)

	require.True(t, d.Execute(context.Background(), game.UseSkill{Index: 0}))
	assert.Equal(t, []string{"tap 1700,750 100ms"}, s.Calls())
	assert.Equal(t, Layout{Width: 2000, Height: 1000}, d.Layout())
}
