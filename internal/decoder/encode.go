package decoder

import "gamepilot/internal/game"

// Builder writes values into the vector layout read by Decode. The
// simulation backend and tests use it to produce well-formed outputs.
type Builder struct {
	vec []float32
}

// NewBuilder allocates a zeroed vector of size n (at least MinLength).
func NewBuilder(n int) *Builder {
	if n < MinLength {
		n = MinLength
	}
	return &Builder{vec: make([]float32, n)}
}

// Screen sets the one-hot screen block.
func (b *Builder) Screen(s game.ScreenType) *Builder {
	for i := 0; i < ScreenSlots; i++ {
		b.vec[ScreenOffset+i] = 0
		if screenOrder[i] == s {
			b.vec[ScreenOffset+i] = 1
		}
	}
	return b
}

// Player sets vitals (fractions 0-1) and position (fractions of the screen).
func (b *Builder) Player(health, mana, x, y float32) *Builder {
	b.vec[HealthIndex] = health
	b.vec[ManaIndex] = mana
	b.vec[PosXIndex] = x
	b.vec[PosYIndex] = y
	return b
}

// Enemy fills enemy slot i.
func (b *Builder) Enemy(i int, x, y, distance float32, aggressive bool, confidence float32) *Builder {
	if i < 0 || i >= MaxEnemies {
		return b
	}
	base := EnemyOffset + i*EnemyStride
	b.vec[base] = x
	b.vec[base+1] = y
	b.vec[base+2] = distance
	b.vec[base+4] = 0
	if aggressive {
		b.vec[base+4] = 1
	}
	b.vec[base+5] = confidence
	return b
}

// Skill fills skill slot i. cooldown is a fraction of MaxCooldownMs.
func (b *Builder) Skill(i int, ready bool, cooldown float32) *Builder {
	if i < 0 || i >= MaxSkills {
		return b
	}
	base := SkillOffset + i*SkillStride
	b.vec[base+2] = 0
	if ready {
		b.vec[base+2] = 1
	}
	b.vec[base+3] = cooldown
	return b
}

// AllSkillsReady marks every skill slot ready with no cooldown.
func (b *Builder) AllSkillsReady() *Builder {
	for i := 0; i < MaxSkills; i++ {
		b.Skill(i, true, 0)
	}
	return b
}

// Vector returns the built vector.
func (b *Builder) Vector() []float32 {
	return b.vec
}
