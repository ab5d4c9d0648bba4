// Package decoder turns the raw inference output vector into a GameState.
//
// Vector layout (float32 indices):
//
//	[0..3]    screen one-hot: main menu, battle, inventory, shop
//	[4]       player health, 0-1
//	[8]       player mana, 0-1
//	[12]      player x, fraction of screen width
//	[16]      player y, fraction of screen height
//	[24..53]  5 enemy slots of 6: x, y, distance, reserved, aggressive, confidence
//	[60..79]  5 skill slots of 4: reserved, reserved, ready, cooldown (x 10s)
//
// Decoding is total. Any field whose index lies past the end of the vector
// takes its default value, and enemy slots that do not fit completely are
// skipped.
package decoder

import (
	"time"

	"gamepilot/internal/game"
)

// Layout constants.
const (
	ScreenOffset = 0
	ScreenSlots  = 4

	HealthIndex = 4
	ManaIndex   = 8
	PosXIndex   = 12
	PosYIndex   = 16

	EnemyOffset = 24
	EnemyStride = 6
	MaxEnemies  = 5

	SkillOffset = 60
	SkillStride = 4
	MaxSkills   = 5

	// MinLength is the smallest vector that fills every block.
	MinLength = SkillOffset + SkillStride*MaxSkills
)

// Thresholds and scales.
const (
	ConfidenceThreshold = 0.5
	AggressiveThreshold = 0.5
	ReadyThreshold      = 0.5
	MaxCooldownMs       = 10000
)

// Player defaults used when the vector is too short.
const (
	DefaultHealth = 100.0
	DefaultMana   = 100.0
)

var screenOrder = [ScreenSlots]game.ScreenType{
	game.ScreenMainMenu,
	game.ScreenBattle,
	game.ScreenInventory,
	game.ScreenShop,
}

// Decode maps vec onto a GameState for a screen of width x height pixels.
func Decode(vec []float32, width, height int) game.GameState {
	return game.GameState{
		Screen:       decodeScreen(vec),
		Player:       decodePlayer(vec, width, height),
		Enemies:      decodeEnemies(vec, width, height),
		Skills:       decodeSkills(vec),
		ScreenWidth:  width,
		ScreenHeight: height,
	}
}

// DecodeFrame decodes against the frame's screen size and stamps the
// frame's capture time.
func DecodeFrame(vec []float32, frame *game.Frame) game.GameState {
	s := Decode(vec, frame.ScreenWidth, frame.ScreenHeight)
	s.Timestamp = frame.Timestamp
	return s
}

// DecodeAt is Decode with an explicit timestamp.
func DecodeAt(vec []float32, width, height int, ts time.Time) game.GameState {
	s := Decode(vec, width, height)
	s.Timestamp = ts
	return s
}

func decodeScreen(vec []float32) game.ScreenType {
	if len(vec) < ScreenOffset+ScreenSlots {
		return game.ScreenUnknown
	}
	best := 0
	for i := 1; i < ScreenSlots; i++ {
		if vec[ScreenOffset+i] > vec[ScreenOffset+best] {
			best = i
		}
	}
	return screenOrder[best]
}

func decodePlayer(vec []float32, width, height int) *game.PlayerState {
	p := &game.PlayerState{
		Health:   DefaultHealth,
		Mana:     DefaultMana,
		Position: game.NewPoint(width/2, height/2),
	}
	if v, ok := at(vec, HealthIndex); ok {
		p.Health = percent(v)
	}
	if v, ok := at(vec, ManaIndex); ok {
		p.Mana = percent(v)
	}
	if v, ok := at(vec, PosXIndex); ok {
		p.Position.X = int(v * float32(width))
	}
	if v, ok := at(vec, PosYIndex); ok {
		p.Position.Y = int(v * float32(height))
	}
	return p
}

func decodeEnemies(vec []float32, width, height int) []game.EnemyInfo {
	enemies := make([]game.EnemyInfo, 0, MaxEnemies)
	for i := 0; i < MaxEnemies; i++ {
		base := EnemyOffset + i*EnemyStride
		if base+EnemyStride > len(vec) {
			break
		}
		confidence := vec[base+5]
		if confidence < ConfidenceThreshold {
			continue
		}
		enemies = append(enemies, game.EnemyInfo{
			Position:   game.NewPoint(int(vec[base]*float32(width)), int(vec[base+1]*float32(height))),
			Distance:   float64(vec[base+2]),
			Aggressive: vec[base+4] > AggressiveThreshold,
			Confidence: float64(confidence),
		})
	}
	return enemies
}

func decodeSkills(vec []float32) []game.SkillInfo {
	skills := make([]game.SkillInfo, MaxSkills)
	for i := range skills {
		base := SkillOffset + i*SkillStride
		s := game.SkillInfo{Index: i, Ready: true}
		if v, ok := at(vec, base+2); ok {
			s.Ready = v > ReadyThreshold
		}
		if v, ok := at(vec, base+3); ok {
			s.CooldownMs = int64(clamp01(v) * MaxCooldownMs)
		}
		skills[i] = s
	}
	return skills
}

func at(vec []float32, i int) (float32, bool) {
	if i < 0 || i >= len(vec) {
		return 0, false
	}
	return vec[i], true
}

func percent(v float32) float64 {
	return float64(clamp01(v)) * 100
}

func clamp01(v float32) float32 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
