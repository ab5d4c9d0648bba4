package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/game"
)

func TestRankByEffect(t *testing.T) {
	p := newPolicy(1)

	err := p.RankByEffect([]SkillEffect{
		{ID: "4", Effect: EffectHeal},
		{ID: "2", Effect: EffectDamage},
		{ID: "3", Effect: "control"},
		{ID: "0", Effect: EffectDamage},
	})
	require.NoError(t, err)

	// control, damage (0 before 2), heal, then uncovered slot 1.
	assert.Equal(t, []int{3, 0, 2, 4, 1}, p.Priority())
}

func TestRankByEffectUnknownTypeLast(t *testing.T) {
	p := newPolicy(1)
	require.NoError(t, p.RankByEffect([]SkillEffect{
		{ID: "0", Effect: "SUMMON"},
		{ID: "1", Effect: EffectDebuff},
	}))
	assert.Equal(t, []int{1, 0, 2, 3, 4}, p.Priority())
}

func TestRankByEffectRejectsNonNumericID(t *testing.T) {
	p := newPolicy(1)
	p.SetPriority([]int{4, 3})

	err := p.RankByEffect([]SkillEffect{
		{ID: "1", Effect: EffectControl},
		{ID: "fireball", Effect: EffectDamage},
	})
	assert.ErrorIs(t, err, ErrNonNumericSkillID)
	assert.Equal(t, []int{4, 3}, p.Priority())

	err = p.RankByEffect([]SkillEffect{{ID: "-2", Effect: EffectControl}})
	assert.ErrorIs(t, err, ErrNonNumericSkillID)
}

func TestRankByEffectEmptyKeepsPriority(t *testing.T) {
	p := newPolicy(1)
	p.SetPriority([]int{2, 1})
	require.NoError(t, p.RankByEffect(nil))
	assert.Equal(t, []int{2, 1}, p.Priority())
}

func TestCombos(t *testing.T) {
	basic, ok := Combo("basic_attack")
	require.True(t, ok)
	assert.Equal(t, []game.Action{
		game.UseSkill{Index: 1},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 2},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 0},
	}, basic.Actions)

	burst, ok := Combo("burst")
	require.True(t, ok)
	assert.Len(t, burst.Actions, 7)

	_, ok = Combo("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"basic_attack", "burst"}, ComboNames())
}
