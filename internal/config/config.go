package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tally.dev/internal/static"
)

const (
	DefaultBindAddress       = "localhost"
	DefaultPort              = 9020
	DefaultSnapshotTimeoutMs = 5000
)

var appPath = static.CreateOnce(func() (string, error) {
	// The env var is used as an exact path, not as a hint
	if envPath := os.Getenv("TALLY_PATH"); envPath != "" {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			return "", fmt.Errorf("invalid TALLY_PATH %q: %w", envPath, err)
		}

		return ensureDir(absPath)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return ensureDir(filepath.Join(home, ".tally"))
})

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tally directory: %w", err)
	}
	return dir, nil
}

// GetAppPath returns the directory tally keeps its config and logs in.
func GetAppPath() (string, error) {
	return appPath.GetValue()
}

type ShellConfig struct {
	// ReleaseChannel is the release channel of the installed build
	ReleaseChannel ReleaseChannel `json:"releaseChannel"`

	// BindAddress is the address the command server listens on
	BindAddress string `json:"bindAddress"`

	// Port is the port the command server listens on
	Port int `json:"port"`

	// CpuScale controls how process CPU usage is normalized
	CpuScale CpuScale `json:"cpuScale"`

	// SnapshotTimeoutMs bounds how long the server waits for a process snapshot.
	// Every snapshot has a deadline, 0 in the config file means the default.
	SnapshotTimeoutMs int `json:"snapshotTimeoutMs"`

	// LogLevel is a zerolog level name, like "debug" or "warn"
	LogLevel string `json:"logLevel"`

	// HistoryFile is where finished timer sessions are saved. When empty, they
	// are only kept in memory.
	HistoryFile string `json:"historyFile"`
}

func DefaultShellConfig() ShellConfig {
	return ShellConfig{
		ReleaseChannel:    ReleaseChannelStable,
		BindAddress:       DefaultBindAddress,
		Port:              DefaultPort,
		CpuScale:          CpuScalePerCore,
		SnapshotTimeoutMs: DefaultSnapshotTimeoutMs,
		LogLevel:          defaultLogLevel,
	}
}

func (cfg *ShellConfig) SnapshotTimeout() time.Duration {
	return time.Duration(cfg.SnapshotTimeoutMs) * time.Millisecond
}

func (cfg *ShellConfig) fillEmptyValues() {
	defaults := DefaultShellConfig()

	if cfg.ReleaseChannel == "" {
		cfg.ReleaseChannel = defaults.ReleaseChannel
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = defaults.BindAddress
	}
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.CpuScale == "" {
		cfg.CpuScale = defaults.CpuScale
	}
	if cfg.SnapshotTimeoutMs == 0 {
		cfg.SnapshotTimeoutMs = defaults.SnapshotTimeoutMs
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
}

func (cfg *ShellConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", cfg.Port)
	}
	if cfg.SnapshotTimeoutMs < 1 {
		return fmt.Errorf("invalid snapshot timeout: %dms", cfg.SnapshotTimeoutMs)
	}
	return nil
}

// LoadShellConfigFrom reads the config file at `filename`. A missing file is not
// an error, the defaults are used instead.
func LoadShellConfigFrom(filename string) (ShellConfig, error) {
	var cfg ShellConfig

	buf, err := os.ReadFile(filename)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return DefaultShellConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	if err == nil {
		if err := json.Unmarshal(buf, &cfg); err != nil {
			return DefaultShellConfig(), fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	}

	cfg.fillEmptyValues()
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = filepath.Join(filepath.Dir(filename), "history.json")
	}
	if err := cfg.Validate(); err != nil {
		return DefaultShellConfig(), fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	return cfg, nil
}

func LoadShellConfig() (ShellConfig, error) {
	dir, err := GetAppPath()
	if err != nil {
		return DefaultShellConfig(), err
	}

	return LoadShellConfigFrom(filepath.Join(dir, "config.json"))
}
