// Package policy implements the per-tick decision policy.
//
// The policy maps the latest GameState plus the live RunConfig to an ordered
// list of actions. It keeps no memory between ticks apart from the skill
// priority ordering and its random source.
//
// Battle Rules (first match wins where noted):
//   1. No player decoded: Wait(100ms)
//   2. Health below the strategy threshold with an enemy in sight: one retreat
//      Move away from the nearest enemy at full distance, nothing else
//   3. Health below the auto-potion threshold: UseItem(0)
//   4. Nearest enemy aggressive: approach (Move 0.5) if its distance > 0.3,
//      then the first ready skill in priority order aimed at the enemy
//   5. Otherwise: exploratory Move in a random direction at 0.3
//   6. Nothing emitted: Wait(50ms) heartbeat
//
// Other Screens:
//   - Main menu: tap "enter game", Wait(500ms)
//   - Inventory/shop: tap "close", Wait(200ms)
//   - Unknown: Wait(500ms)
package policy

import (
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gamepilot/internal/config"
	"gamepilot/internal/game"
)

// Distances and timings used by the rules above.
const (
	RetreatDistance  = 1.0
	ApproachDistance = 0.5
	ExploreDistance  = 0.3
	EngageRange      = 0.3

	NoPlayerWait  = 100 * time.Millisecond
	HeartbeatWait = 50 * time.Millisecond
	MenuWait      = 500 * time.Millisecond
	CloseWait     = 200 * time.Millisecond
	UnknownWait   = 500 * time.Millisecond
	MenuTap       = 100 * time.Millisecond

	// PotionSlot is the quick-bar item used for auto-potion.
	PotionSlot = 0
)

// "Enter game" tap position as fractions of the screen.
const (
	EnterGameX = 0.5
	EnterGameY = 0.625
)

// ClosePoint is the fixed "close" button in the top-left corner.
var ClosePoint = game.NewPoint(50, 50)

// DefaultPriority is the skill order used until re-ranked.
var DefaultPriority = []int{0, 1, 2, 3, 4}

// Config configures a Policy.
type Config struct {
	// Rand drives the exploratory branch. Nil seeds from the clock.
	Rand     *rand.Rand
	Priority []int
	Logger   *log.Logger
}

// Policy decides actions. Safe for concurrent use.
type Policy struct {
	logger *log.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	priority []int
}

// New creates a policy.
func New(cfg Config) *Policy {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = DefaultPriority
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Policy{
		logger:   cfg.Logger.WithPrefix("policy"),
		rng:      cfg.Rand,
		priority: append([]int(nil), cfg.Priority...),
	}
}

// Decide returns this tick's actions for state under cfg.
func (p *Policy) Decide(state *game.GameState, cfg config.RunConfig) []game.Action {
	switch state.Screen {
	case game.ScreenBattle:
		return p.decideBattle(state, cfg)
	case game.ScreenMainMenu:
		x := int(float64(state.ScreenWidth) * EnterGameX)
		y := int(float64(state.ScreenHeight) * EnterGameY)
		return []game.Action{
			game.Tap{X: x, Y: y, Duration: MenuTap},
			game.Wait{Duration: MenuWait},
		}
	case game.ScreenInventory, game.ScreenShop:
		return []game.Action{
			game.Tap{X: ClosePoint.X, Y: ClosePoint.Y, Duration: MenuTap},
			game.Wait{Duration: CloseWait},
		}
	default:
		return []game.Action{game.Wait{Duration: UnknownWait}}
	}
}

func (p *Policy) decideBattle(state *game.GameState, cfg config.RunConfig) []game.Action {
	player := state.Player
	if player == nil {
		return []game.Action{game.Wait{Duration: NoPlayerWait}}
	}

	nearest := state.NearestEnemy()

	// Emergency override.
	if player.Health < cfg.HealthThreshold() && nearest != nil {
		return []game.Action{game.Move{
			Direction: nearest.Position.DirectionTo(player.Position),
			Distance:  RetreatDistance,
		}}
	}

	var actions []game.Action

	if player.Health < float64(cfg.AutoPotionThreshold) {
		actions = append(actions, game.UseItem{Index: PotionSlot})
	}

	if nearest != nil && nearest.Aggressive {
		if nearest.Distance > EngageRange {
			actions = append(actions, game.Move{
				Direction: player.Position.DirectionTo(nearest.Position),
				Distance:  ApproachDistance,
			})
		}
		if idx, ok := p.firstReady(state); ok {
			target := nearest.Position
			actions = append(actions, game.UseSkill{Index: idx, Target: &target})
		}
	} else {
		actions = append(actions, game.Move{
			Direction: p.randomDirection(),
			Distance:  ExploreDistance,
		})
	}

	if len(actions) == 0 {
		actions = append(actions, game.Wait{Duration: HeartbeatWait})
	}
	return actions
}

func (p *Policy) firstReady(state *game.GameState) (int, bool) {
	for _, idx := range p.Priority() {
		if s := state.Skill(idx); s != nil && s.Ready {
			return idx, true
		}
	}
	return 0, false
}

func (p *Policy) randomDirection() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() * 360
}

// Priority returns a copy of the current skill order.
func (p *Policy) Priority() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.priority...)
}

// SetPriority replaces the skill order. An empty list restores the default.
func (p *Policy) SetPriority(order []int) {
	if len(order) == 0 {
		order = DefaultPriority
	}
	p.mu.Lock()
	p.priority = append([]int(nil), order...)
	p.mu.Unlock()
	p.logger.Info("skill priority updated", "order", order)
}
