// gamepilot plays a mobile game by looking at the screen: it captures
// frames, runs them through a model, decodes the game state, picks actions
// and injects them as touch gestures.
//
// Usage:
//
//	gamepilot run                      - Start the pipeline (tray, API and telemetry as configured)
//	gamepilot replay <png>             - Run one screenshot offline and write an annotated copy
//	gamepilot config show              - Print the effective configuration
//	gamepilot config init              - Write a default configuration file
//	gamepilot knowledge list           - List learned skills, items and positions
//	gamepilot knowledge add-skill      - Add or replace a skill
//	gamepilot knowledge add-item       - Add or replace an item
//	gamepilot knowledge remove-skill   - Delete a skill
//	gamepilot knowledge remember       - Pin a UI element position
//
// Global flags:
//
//	--config <path>     - Configuration file (.yaml, .toml or .json; default gamepilot.yaml)
//	--log-file <path>   - Log file, truncated at startup (default Debug.log, "" for stderr)
//	--log-level <lvl>   - debug, info, warn or error (default info)
//	--seed <value>      - Seed for the exploratory move (0 = time based)
//
// Exit Codes:
//   - 0: normal exit
//   - 1: command failed
//   - 2: unhandled panic
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
)

var (
	// Global flags
	flagConfig   string
	flagLogFile  string
	flagLogLevel string
	flagSeed     int64
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			botlog.Error("PANIC in main: %v", r)
			botlog.Close()
			os.Exit(2)
		}
	}()

	err := rootCmd.Execute()
	botlog.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gamepilot",
	Short: "Vision-driven autopilot for a mobile game",
	Long: `gamepilot runs a capture -> inference -> decode -> decide -> dispatch
loop against a game running in Chrome (touch emulation) or on the local
desktop.

Available commands:
  run        - Start the control loop
  replay     - Decode one screenshot offline
  config     - Show or initialize the configuration file
  knowledge  - Inspect and edit learned skills, items and positions

Examples:
  gamepilot config init --config gamepilot.yaml
  gamepilot run --config gamepilot.yaml --api
  gamepilot replay screenshot.png --out result.png`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return botlog.Init(flagLogFile, flagLogLevel)
	},
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "Configuration file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "Debug.log", "Log file, truncated at startup (empty for stderr)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "Seed for the exploratory move (0 = random based on time)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

// loadConfig reads the --config file. A decode failure is logged and the
// defaults are used.
func loadConfig() config.File {
	f, err := config.LoadFile(flagConfig)
	if err != nil {
		botlog.Error("Failed to load config %s: %v, using defaults", flagConfig, err)
		return config.DefaultFile()
	}
	return f
}
