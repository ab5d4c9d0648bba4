package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/config"
	"gamepilot/internal/game"
)

func writeUniformPNG(t *testing.T, name string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, savePNG(path, img))
	return path
}

func TestReplayBattleFrame(t *testing.T) {
	in := writeUniformPNG(t, "bright.png", color.RGBA{R: 200, G: 200, B: 200, A: 255})
	out := filepath.Join(t.TempDir(), "debug", "result.png")

	res, err := Replay(context.Background(), in, ReplayOptions{
		Run:  config.DefaultRunConfig(),
		Seed: 1,
		Out:  out,
	})
	require.NoError(t, err)

	assert.Equal(t, "simulation", res.Backend)
	assert.Equal(t, game.ScreenBattle, res.State.Screen)
	require.NotNil(t, res.State.Player)
	assert.Len(t, res.State.Enemies, 1)
	assert.NotEmpty(t, res.Actions)

	annotated, err := loadPNG(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), annotated.Bounds())

	var buf bytes.Buffer
	writeReplay(&buf, res)
	assert.Contains(t, buf.String(), "Screen:    battle")
	assert.Contains(t, buf.String(), "Enemies:   1")
}

func TestReplayDarkFrameIsMenu(t *testing.T) {
	in := writeUniformPNG(t, "dark.png", color.RGBA{A: 255})

	res, err := Replay(context.Background(), in, ReplayOptions{Run: config.DefaultRunConfig(), Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, game.ScreenMainMenu, res.State.Screen)
	require.Len(t, res.Actions, 2)
	assert.IsType(t, game.Tap{}, res.Actions[0])
}

func TestReplayMissingFile(t *testing.T) {
	_, err := Replay(context.Background(), filepath.Join(t.TempDir(), "nope.png"), ReplayOptions{})
	assert.Error(t, err)
}

func TestAimedTargetsDescendsComposites(t *testing.T) {
	a, b := game.NewPoint(1, 2), game.NewPoint(3, 4)
	actions := []game.Action{
		game.UseSkill{Index: 0, Target: &a},
		game.UseSkill{Index: 1},
		game.Composite{Actions: []game.Action{game.Wait{}, game.UseSkill{Index: 2, Target: &b}}},
	}
	assert.Equal(t, []game.Point{a, b}, aimedTargets(actions))
}
