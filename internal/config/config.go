package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/evanschultz/rz/internal/domain"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Scan     ScanConfig     `toml:"scan"`
	Split    SplitConfig    `toml:"split"`
	UI       UIConfig       `toml:"ui"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ScanConfig struct {
	Direction string `toml:"direction"` // forward | backward
}

type SplitConfig struct {
	DefaultMode  string `toml:"default_mode"` // replace | keep | archive
	InheritNotes bool   `toml:"inherit_notes"`
}

type UIConfig struct {
	Theme string `toml:"theme"` // dark | light
}

type LoggingConfig struct {
	Level   string `toml:"level"` // debug | info | warn | error
	DevFile string `toml:"dev_file"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Scan: ScanConfig{
			Direction: string(domain.ScanForward),
		},
		Split: SplitConfig{
			DefaultMode:  string(domain.SplitReplace),
			InheritNotes: false,
		},
		UI: UIConfig{
			Theme: "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:7411",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	direction := domain.ScanDirection(strings.TrimSpace(strings.ToLower(c.Scan.Direction)))
	if direction != "" && !domain.IsValidScanDirection(direction) {
		return fmt.Errorf("invalid scan.direction: %q", c.Scan.Direction)
	}

	mode := domain.SplitMode(strings.TrimSpace(strings.ToLower(c.Split.DefaultMode)))
	if mode != "" && !domain.IsValidSplitMode(mode) {
		return fmt.Errorf("invalid split.default_mode: %q", c.Split.DefaultMode)
	}

	switch strings.TrimSpace(strings.ToLower(c.UI.Theme)) {
	case "", "dark", "light":
	default:
		return fmt.Errorf("invalid ui.theme: %q", c.UI.Theme)
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// Settings maps the file-level preferences onto the persisted defaults.
func (c Config) Settings() domain.Settings {
	return domain.NormalizeSettings(domain.Settings{
		ScanDirection:       domain.ScanDirection(strings.TrimSpace(strings.ToLower(c.Scan.Direction))),
		Theme:               strings.TrimSpace(strings.ToLower(c.UI.Theme)),
		SplitMode:           domain.SplitMode(strings.TrimSpace(strings.ToLower(c.Split.DefaultMode))),
		InheritNotesOnSplit: c.Split.InheritNotes,
	})
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
