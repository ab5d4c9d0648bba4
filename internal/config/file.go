package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownStrategy is returned for strategy names outside Strategies.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrUnknownFormat is returned for config files with an unsupported extension.
	ErrUnknownFormat = errors.New("unknown config format")
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "gamepilot.yaml"

// PlatformConfig selects and sizes the capture/input surface.
type PlatformConfig struct {
	Kind     string `json:"kind" yaml:"kind" toml:"kind"` // "browser" or "desktop"
	URL      string `json:"url" yaml:"url" toml:"url"`
	Width    int    `json:"width" yaml:"width" toml:"width"`
	Height   int    `json:"height" yaml:"height" toml:"height"`
	Headless bool   `json:"headless" yaml:"headless" toml:"headless"`

	// Overlay draws the decoded state over the page (browser only).
	Overlay bool `json:"overlay" yaml:"overlay" toml:"overlay"`
}

// ModelConfig locates the inference backend. An empty or missing Path with
// no RemoteURL selects simulation.
type ModelConfig struct {
	Path          string `json:"path" yaml:"path" toml:"path"`
	RemoteURL     string `json:"remote_url" yaml:"remote_url" toml:"remote_url"`
	RemoteTimeout int    `json:"remote_timeout_ms" yaml:"remote_timeout_ms" toml:"remote_timeout_ms"`
}

// KnowledgeConfig locates the skill/item catalog and the position memory.
type KnowledgeConfig struct {
	DBPath     string `json:"db_path" yaml:"db_path" toml:"db_path"`
	MemoryPath string `json:"memory_path" yaml:"memory_path" toml:"memory_path"`
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

// TelemetryConfig controls the redis stats publisher. An empty Addr
// disables it.
type TelemetryConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
	EveryTicks    int    `json:"every_ticks" yaml:"every_ticks" toml:"every_ticks"`
	TTLSeconds    int    `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// CookieData represents a browser cookie kept between sessions.
type CookieData struct {
	Name     string  `json:"name" yaml:"name" toml:"name"`
	Value    string  `json:"value" yaml:"value" toml:"value"`
	Domain   string  `json:"domain" yaml:"domain" toml:"domain"`
	Path     string  `json:"path" yaml:"path" toml:"path"`
	Expires  float64 `json:"expires" yaml:"expires" toml:"expires"`
	HTTPOnly bool    `json:"httpOnly" yaml:"http_only" toml:"http_only"`
	Secure   bool    `json:"secure" yaml:"secure" toml:"secure"`
	SameSite string  `json:"sameSite" yaml:"same_site" toml:"same_site"`
}

// File is everything persisted between sessions.
type File struct {
	Run       RunConfig       `json:"run" yaml:"run" toml:"run"`
	Platform  PlatformConfig  `json:"platform" yaml:"platform" toml:"platform"`
	Model     ModelConfig     `json:"model" yaml:"model" toml:"model"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge" toml:"knowledge"`
	API       APIConfig       `json:"api" yaml:"api" toml:"api"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
	Cookies   []CookieData    `json:"cookies" yaml:"cookies" toml:"cookies"`
}

// DefaultFile returns the configuration used when no file exists.
func DefaultFile() File {
	return File{
		Run: DefaultRunConfig(),
		Platform: PlatformConfig{
			Kind:   "browser",
			URL:    "about:blank",
			Width:  1080,
			Height: 1920,
		},
		Model: ModelConfig{
			Path:          "model.gmdl",
			RemoteTimeout: 2000,
		},
		Knowledge: KnowledgeConfig{
			DBPath:     "~/.gamepilot/knowledge.db",
			MemoryPath: "~/.gamepilot/memory.json",
		},
		API: APIConfig{
			Addr: "127.0.0.1:8765",
		},
		Telemetry: TelemetryConfig{
			EveryTicks: 100,
			TTLSeconds: 3600,
		},
		Cookies: []CookieData{},
	}
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

type format int

const (
	formatYAML format = iota
	formatTOML
	formatJSON
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	case ".json":
		return formatJSON, nil
	default:
		return 0, fmt.Errorf("config: %w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// LoadFile reads path over DefaultFile, so omitted keys keep their defaults.
//
// Load Behavior:
//   - File missing: defaults, no error
//   - File present: decoded by extension (.yaml/.yml, .toml, .json)
//   - Decode failure: error (the caller decides whether to fall back)
//
// The run section is clamped before returning.
func LoadFile(path string) (File, error) {
	f := DefaultFile()

	p, err := ExpandPath(path)
	if err != nil {
		return f, err
	}
	kind, err := formatOf(p)
	if err != nil {
		return f, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", p, err)
	}

	switch kind {
	case formatYAML:
		err = yaml.Unmarshal(data, &f)
	case formatTOML:
		_, err = toml.Decode(string(data), &f)
	case formatJSON:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return DefaultFile(), fmt.Errorf("config: decode %s: %w", p, err)
	}

	f.Run = f.Run.Clamp()
	return f, nil
}

// SaveFile writes f to path in the format implied by its extension,
// creating parent directories as needed.
func SaveFile(path string, f File) error {
	p, err := ExpandPath(path)
	if err != nil {
		return err
	}
	kind, err := formatOf(p)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch kind {
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(f)
		if err == nil {
			err = enc.Close()
		}
	case formatTOML:
		err = toml.NewEncoder(&buf).Encode(f)
	case formatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(f)
	}
	if err != nil {
		return fmt.Errorf("config: encode %s: %w", p, err)
	}

	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", p, err)
	}
	return nil
}
