// Package config loads and persists the helper's per-user settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds all extbridge settings.
// Priority: env vars > config.json > defaults.
type Config struct {
	ExtensionFolder string `json:"extensionFolder"`
	FirefoxPath     string `json:"firefoxPath"`
	WatchEnabled    bool   `json:"watchEnabled"`
	LoaderCommand   string `json:"loaderCommand"`
	LogLevel        string `json:"logLevel"`
	ScanFilter      string `json:"scanFilter"`
	FilterEngine    string `json:"filterEngine"`
	WatchSchedule   string `json:"watchSchedule"`
}

// Default returns the built-in settings used when nothing is persisted.
func Default() Config {
	return Config{
		LoaderCommand: "web-ext",
		LogLevel:      "info",
		FilterEngine:  "expr",
		WatchSchedule: "@every 10s",
	}
}

// Dir returns the per-user settings directory.
func Dir() string {
	if v := os.Getenv("EXTBRIDGE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".extbridge"
	}
	return filepath.Join(home, ".extbridge")
}

// DefaultPath returns the settings file location inside Dir.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Store reads and writes a Config at a fixed path.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a Store for the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted settings merged over Default, with environment
// overrides applied. Missing keys keep their defaults. Read and parse errors
// are logged and yield defaults; Load never fails.
func (s *Store) Load() Config {
	cfg := s.LoadFile()
	applyEnv(&cfg)
	return cfg
}

// LoadFile is Load without environment overrides: the settings as they stand
// on disk. Callers that modify and Save settings start from here so values
// that only come from the environment are never written back.
func (s *Store) LoadFile() Config {
	cfg := Default()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("config file absent, using defaults", slog.String("path", s.path))
	case err != nil:
		s.logger.Warn("config file unreadable, using defaults",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	default:
		merged := Default()
		if err := json.Unmarshal(data, &merged); err != nil {
			s.logger.Warn("config file corrupt, using defaults",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		} else {
			cfg = merged
		}
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("EXTBRIDGE_EXTENSION_FOLDER"); v != "" {
		cfg.ExtensionFolder = v
	}
	if v := os.Getenv("EXTBRIDGE_FIREFOX_PATH"); v != "" {
		cfg.FirefoxPath = v
	}
	if v := os.Getenv("EXTBRIDGE_LOADER_COMMAND"); v != "" {
		cfg.LoaderCommand = v
	}
	if v := os.Getenv("EXTBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Save writes cfg atomically: a temp file in the target directory is synced
// and renamed over the settings file. Parent directories are created on demand.
func (s *Store) Save(cfg Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	committed = true
	return nil
}

// Diff lists the JSON keys whose values differ between old and new.
func Diff(old, new Config) []string {
	var changed []string
	if old.ExtensionFolder != new.ExtensionFolder {
		changed = append(changed, "extensionFolder")
	}
	if old.FirefoxPath != new.FirefoxPath {
		changed = append(changed, "firefoxPath")
	}
	if old.WatchEnabled != new.WatchEnabled {
		changed = append(changed, "watchEnabled")
	}
	if old.LoaderCommand != new.LoaderCommand {
		changed = append(changed, "loaderCommand")
	}
	if old.LogLevel != new.LogLevel {
		changed = append(changed, "logLevel")
	}
	if old.ScanFilter != new.ScanFilter {
		changed = append(changed, "scanFilter")
	}
	if old.FilterEngine != new.FilterEngine {
		changed = append(changed, "filterEngine")
	}
	if old.WatchSchedule != new.WatchSchedule {
		changed = append(changed, "watchSchedule")
	}
	return changed
}

// ParseLevel maps a config log level onto slog. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
