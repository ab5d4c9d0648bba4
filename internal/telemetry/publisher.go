// Package telemetry mirrors controller stats into redis so that other
// processes can watch a run.
//
// Per run it writes:
//
//	gamepilot:stats:<run>   latest stats JSON (string, TTL)
//	gamepilot:ticks:<run>   recent stats JSON scored by frame count (zset, TTL)
//
// and publishes every snapshot on the gamepilot:status channel.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"gamepilot/internal/config"
	"gamepilot/internal/control"
)

const (
	StatusChannel = "gamepilot:status"

	// MaxTicks bounds the recent-ticks sorted set.
	MaxTicks       = 500
	publishTimeout = 2 * time.Second
)

// StatsKey is the key holding the latest stats of a run.
func StatsKey(runID string) string {
	return fmt.Sprintf("gamepilot:stats:%s", runID)
}

// TicksKey is the sorted set of recent stats of a run.
func TicksKey(runID string) string {
	return fmt.Sprintf("gamepilot:ticks:%s", runID)
}

// Payload encodes a stats snapshot.
func Payload(s control.Stats) ([]byte, error) {
	return json.Marshal(s)
}

// Publisher writes stats to redis from a single background goroutine.
// OnTick and OnStatus never block the caller: while a publish is in
// flight only the newest pending snapshot is kept.
type Publisher struct {
	rdb    *redis.Client
	every  uint64
	ttl    time.Duration
	logger *log.Logger

	pending chan control.Stats

	mu        sync.Mutex
	published uint64
	failures  uint64
}

// New connects to the redis named by cfg. It does not ping; see Ping.
func New(cfg config.TelemetryConfig, logger *log.Logger) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewWithClient(rdb, cfg.EveryTicks, time.Duration(cfg.TTLSeconds)*time.Second, logger)
}

// NewWithClient wraps an existing client. every <= 0 publishes every tick;
// ttl <= 0 defaults to one hour.
func NewWithClient(rdb *redis.Client, every int, ttl time.Duration, logger *log.Logger) *Publisher {
	if every <= 0 {
		every = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		rdb:     rdb,
		every:   uint64(every),
		ttl:     ttl,
		logger:  logger.WithPrefix("telemetry"),
		pending: make(chan control.Stats, 1),
	}
}

// Ping checks that redis is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("telemetry: ping: %w", err)
	}
	return nil
}

// Publish writes one snapshot synchronously.
func (p *Publisher) Publish(ctx context.Context, s control.Stats) error {
	if s.RunID == "" {
		return nil
	}
	payload, err := Payload(s)
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}

	ticks := TicksKey(s.RunID)
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, StatsKey(s.RunID), payload, p.ttl)
	pipe.ZAdd(ctx, ticks, redis.Z{Score: float64(s.FrameCount), Member: payload})
	pipe.ZRemRangeByRank(ctx, ticks, 0, -(MaxTicks + 1))
	pipe.Expire(ctx, ticks, p.ttl)
	pipe.Publish(ctx, StatusChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("telemetry: publish: %w", err)
	}
	return nil
}

// OnTick queues every N-th snapshot.
func (p *Publisher) OnTick(s control.Stats) {
	if s.FrameCount%p.every != 0 {
		return
	}
	p.offer(s)
}

// OnStatus queues a snapshot unconditionally.
func (p *Publisher) OnStatus(s control.Stats) {
	p.offer(s)
}

func (p *Publisher) offer(s control.Stats) {
	for {
		select {
		case p.pending <- s:
			return
		default:
		}
		// drop the stale snapshot and retry
		select {
		case <-p.pending:
		default:
		}
	}
}

// Run publishes queued snapshots until ctx is done. Failures are logged
// and counted, never fatal.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.pending:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := p.Publish(pubCtx, s)
			cancel()

			p.mu.Lock()
			if err != nil {
				p.failures++
			} else {
				p.published++
			}
			failures := p.failures
			p.mu.Unlock()

			if err != nil {
				p.logger.Warn("publish failed", "err", err, "failures", failures)
			}
		}
	}
}

// Counts returns how many snapshots were published and how many failed.
func (p *Publisher) Counts() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failures
}

// Close releases the redis client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
