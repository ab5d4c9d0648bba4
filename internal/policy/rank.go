package policy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gamepilot/internal/game"
)

// ErrNonNumericSkillID is returned when a knowledge record's id cannot be
// used as a skill slot index.
var ErrNonNumericSkillID = errors.New("skill id is not a slot index")

// Effect types, in ranking order.
const (
	EffectControl  = "CONTROL"
	EffectDamage   = "DAMAGE"
	EffectBuff     = "BUFF"
	EffectHeal     = "HEAL"
	EffectMobility = "MOBILITY"
	EffectDebuff   = "DEBUFF"
)

var effectRank = map[string]int{
	EffectControl:  0,
	EffectDamage:   1,
	EffectBuff:     2,
	EffectHeal:     3,
	EffectMobility: 4,
	EffectDebuff:   5,
}

// SkillEffect is the slice of a knowledge record the ranking needs.
type SkillEffect struct {
	ID     string
	Effect string
}

// RankByEffect reorders the skill priority by effect type: control, damage,
// buff, heal, mobility, debuff, then unknown types. Ties keep natural index
// order. Default slots not covered by skills are appended in natural order.
//
// Returns ErrNonNumericSkillID (wrapped) if any id is not a non-negative
// integer; the previous priority is kept in that case.
func (p *Policy) RankByEffect(skills []SkillEffect) error {
	type ranked struct {
		index int
		rank  int
	}

	list := make([]ranked, 0, len(skills))
	seen := make(map[int]bool, len(skills))
	for _, s := range skills {
		idx, err := strconv.Atoi(strings.TrimSpace(s.ID))
		if err != nil || idx < 0 {
			return fmt.Errorf("policy: rank skills: %w: %q", ErrNonNumericSkillID, s.ID)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true

		r, ok := effectRank[strings.ToUpper(s.Effect)]
		if !ok {
			r = len(effectRank)
		}
		list = append(list, ranked{index: idx, rank: r})
	}
	if len(list) == 0 {
		return nil
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].rank != list[j].rank {
			return list[i].rank < list[j].rank
		}
		return list[i].index < list[j].index
	})

	order := make([]int, 0, len(list)+len(DefaultPriority))
	for _, r := range list {
		order = append(order, r.index)
	}
	for _, idx := range DefaultPriority {
		if !seen[idx] {
			order = append(order, idx)
		}
	}

	p.SetPriority(order)
	return nil
}

var combos = map[string][]game.Action{
	"basic_attack": {
		game.UseSkill{Index: 1},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 2},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 0},
	},
	"burst": {
		game.UseSkill{Index: 4},
		game.Wait{Duration: 200 * time.Millisecond},
		game.UseSkill{Index: 3},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 2},
		game.Wait{Duration: 100 * time.Millisecond},
		game.UseSkill{Index: 1},
	},
}

// Combo returns a named skill combo as a Composite.
func Combo(name string) (game.Composite, bool) {
	seq, ok := combos[name]
	if !ok {
		return game.Composite{}, false
	}
	return game.Composite{Actions: append([]game.Action(nil), seq...)}, true
}

// ComboNames lists the available combos, sorted.
func ComboNames() []string {
	names := make([]string, 0, len(combos))
	for name := range combos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
