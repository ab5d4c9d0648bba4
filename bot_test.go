package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/knowledge"
)

// stateBot builds just enough of a Bot for SaveState.
func stateBot(t *testing.T, path string, data config.File, persist *config.File) *Bot {
	t.Helper()
	return &Bot{
		opts:   BotOptions{ConfigPath: path, Persist: persist},
		data:   data,
		saved:  persist,
		logger: botlog.Discard(),
		store:  config.NewStore(data.Run),
		memory: knowledge.NewMemory(filepath.Join(t.TempDir(), "memory.json")),
	}
}

func TestRunFlagsAreNotPersisted(t *testing.T) {
	resetFlags(runCmd)
	t.Cleanup(func() { resetFlags(runCmd) })
	require.NoError(t, runCmd.Flags().Parse([]string{"--api", "--redis", "10.0.0.1:6379", "--platform", "desktop"}))

	path := filepath.Join(t.TempDir(), "gamepilot.yaml")
	loaded := config.DefaultFile()
	data := applyRunFlags(loaded, runCmd.Flags())

	assert.True(t, data.API.Enabled)
	assert.Equal(t, "10.0.0.1:6379", data.Telemetry.RedisAddr)
	assert.Equal(t, "desktop", data.Platform.Kind)
	assert.False(t, loaded.API.Enabled)

	b := stateBot(t, path, data, &loaded)
	b.store.Update(func(c config.RunConfig) config.RunConfig {
		c.FrameRate = 25
		return c
	})
	b.SaveState()

	saved, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 25, saved.Run.FrameRate)
	assert.False(t, saved.API.Enabled)
	assert.Empty(t, saved.Telemetry.RedisAddr)
	assert.Equal(t, "browser", saved.Platform.Kind)
}

func TestUnreadableConfigIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamepilot.yaml")
	broken := []byte("run: [this is not a mapping\n")
	require.NoError(t, os.WriteFile(path, broken, 0o644))

	_, err := config.LoadFile(path)
	require.Error(t, err)

	b := stateBot(t, path, config.DefaultFile(), nil)
	b.SaveState()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, broken, got)
}
