package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
)

func newTestPublisher(t *testing.T, every int) (*Publisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewWithClient(rdb, every, time.Minute, botlog.Discard()), mr, rdb
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "gamepilot:stats:abc", StatsKey("abc"))
	assert.Equal(t, "gamepilot:ticks:abc", TicksKey("abc"))
}

func TestPayload(t *testing.T) {
	raw, err := Payload(control.Stats{RunID: "r1", Status: control.StatusRunning, FrameCount: 7})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "r1", decoded["run_id"])
	assert.Equal(t, "running", decoded["status"])
	assert.EqualValues(t, 7, decoded["frame_count"])
}

func TestPublishWritesKeys(t *testing.T) {
	p, mr, rdb := newTestPublisher(t, 1)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, StatusChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, p.Publish(ctx, control.Stats{RunID: "r1", FrameCount: i}))
	}

	latest, err := mr.Get(StatsKey("r1"))
	require.NoError(t, err)
	var stats control.Stats
	require.NoError(t, json.Unmarshal([]byte(latest), &stats))
	assert.Equal(t, uint64(3), stats.FrameCount)
	assert.Equal(t, time.Minute, mr.TTL(StatsKey("r1")))

	n, err := rdb.ZCard(ctx, TicksKey("r1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, time.Minute, mr.TTL(TicksKey("r1")))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"run_id":"r1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no status message published")
	}
}

func TestPublishSkipsEmptyRun(t *testing.T) {
	p, mr, _ := newTestPublisher(t, 1)
	require.NoError(t, p.Publish(context.Background(), control.Stats{}))
	assert.Empty(t, mr.Keys())
}

func TestRunPublishesEveryNthTick(t *testing.T) {
	p, mr, _ := newTestPublisher(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.OnTick(control.Stats{RunID: "r2", FrameCount: 3})
	p.OnTick(control.Stats{RunID: "r2", FrameCount: 10})

	require.Eventually(t, func() bool {
		published, _ := p.Counts()
		return published == 1
	}, 2*time.Second, 10*time.Millisecond)

	latest, err := mr.Get(StatsKey("r2"))
	require.NoError(t, err)
	assert.Contains(t, latest, `"frame_count":10`)

	p.OnStatus(control.Stats{RunID: "r2", FrameCount: 11, Status: control.StatusPaused})
	require.Eventually(t, func() bool {
		published, _ := p.Counts()
		return published == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOfferKeepsNewest(t *testing.T) {
	p := NewWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 1, 0, botlog.Discard())
	defer p.Close()

	p.OnStatus(control.Stats{FrameCount: 1})
	p.OnStatus(control.Stats{FrameCount: 2})
	got := <-p.pending
	assert.Equal(t, uint64(2), got.FrameCount)
}

func TestUnreachableRedis(t *testing.T) {
	p := New(config.TelemetryConfig{RedisAddr: "127.0.0.1:1", EveryTicks: 1}, botlog.Discard())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, p.Ping(ctx))
	assert.Error(t, p.Publish(ctx, control.Stats{RunID: "r3", FrameCount: 1}))
}
