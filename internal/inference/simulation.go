package inference

import (
	"context"
	"math"

	"gamepilot/internal/decoder"
	"gamepilot/internal/game"
)

// Simulation stands in for a model when no artifact is installed. Its
// output depends only on the frame: a battle screen with healthy vitals,
// the player centered, all skills ready, and one aggressive enemy circling
// the player as the frame sequence advances. Dark frames (mean luminance
// below 16) report the main menu instead.
type Simulation struct{}

func (Simulation) Name() string { return "simulation" }

func (Simulation) Load(context.Context) error { return nil }

func (Simulation) Close() error { return nil }

func (Simulation) Infer(_ context.Context, frame *game.Frame) ([]float32, error) {
	b := decoder.NewBuilder(OutputSize)

	if meanLuminance(frame.Image()) < 16 {
		return b.Screen(game.ScreenMainMenu).Vector(), nil
	}

	angle := float64(frame.Seq%36) * 10 * math.Pi / 180
	ex := 0.5 + 0.3*math.Cos(angle)
	ey := 0.5 - 0.2*math.Sin(angle)
	distance := 0.2 + 0.2*math.Abs(math.Sin(angle))

	b.Screen(game.ScreenBattle).
		Player(0.8, 0.8, 0.5, 0.5).
		Enemy(0, float32(ex), float32(ey), float32(distance), true, 0.9).
		AllSkillsReady()
	return b.Vector(), nil
}
