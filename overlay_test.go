package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
	"gamepilot/internal/game"
)

func TestBuildOverlay(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	target := game.NewPoint(300, 400)
	state := &game.GameState{
		Screen:  game.ScreenBattle,
		Player:  &game.PlayerState{Health: 60, Mana: 40, Position: game.NewPoint(540, 960)},
		Enemies: []game.EnemyInfo{{Position: target, Aggressive: true}},
	}
	stats := control.Stats{
		Status:         control.StatusRunning,
		StartedAt:      now.Add(-65 * time.Second),
		FrameCount:     10,
		FPS:            20,
		AvgInferenceMs: 12.34,
		AvgActionMs:    4,
	}
	logs := []botlog.Entry{
		{Time: now, Line: "short"},
		{Time: now, Line: strings.Repeat("x", 100)},
	}

	o := buildOverlay(stats, state, []game.Action{game.UseSkill{Index: 0, Target: &target}}, config.DefaultRunConfig(), logs, now)

	require.Len(t, o.Lines, 4)
	assert.Equal(t, "Status: running | 10 frames | 20.0 fps | 1m 5s", o.Lines[0])
	assert.Equal(t, "Strategy: balanced (retreat < 50%) | potion < 30%", o.Lines[1])
	assert.Equal(t, "Inference 12.3ms | Action 4.0ms", o.Lines[2])
	assert.Equal(t, "Screen: battle | 1 enemies", o.Lines[3])
	assert.Same(t, state.Player, o.Player)
	assert.Equal(t, []game.Point{target}, o.Targets)

	require.Len(t, o.Log, 2)
	assert.Equal(t, "12:00:00 short", o.Log[0])
	assert.Len(t, []rune(o.Log[1]), overlayLogWidth)
	assert.True(t, strings.HasSuffix(o.Log[1], "..."))
}

func TestBuildOverlayWithoutState(t *testing.T) {
	o := buildOverlay(control.Stats{Status: control.StatusIdle}, nil, nil, config.DefaultRunConfig(), nil, time.Now())
	assert.Len(t, o.Lines, 3)
	assert.Equal(t, "Status: idle", o.Lines[0])
	assert.Nil(t, o.Player)
	assert.Empty(t, o.Targets)
	assert.Empty(t, o.Log)
}
