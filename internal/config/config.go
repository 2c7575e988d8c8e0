// Package config loads clipd configuration from file, environment, and
// defaults.
//
// Precedence (highest first): environment (CLIPD_*), config file,
// built-in defaults. The file is YAML, JSON, or TOML; viper sniffs the
// format from the extension.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full clipd configuration.
type Config struct {
	// ===== Storage =====

	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// ===== Sync =====

	// ServerURL is the backend WebSocket endpoint. Empty disables sync.
	ServerURL string `mapstructure:"server_url"`

	// Teams lists the team namespaces to open alongside the personal one.
	Teams []string `mapstructure:"teams"`

	// ===== Capture =====

	// Incognito starts every namespace with auto-capture suppressed.
	Incognito bool `mapstructure:"incognito"`

	// PasteCommand is the command line used to read the OS clipboard,
	// e.g. "wl-paste -n" or "pbpaste". Empty disables polling.
	PasteCommand string `mapstructure:"paste_command"`

	// PollInterval is the clipboard sampling period.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// DebounceInterval batches rapid inbox file changes.
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`

	// InboxDir is watched for dropped clip files. Empty disables it.
	InboxDir string `mapstructure:"inbox_dir"`

	// ===== Outbound queue =====

	// OpQueueSize bounds the pending outbound notification queue.
	OpQueueSize int `mapstructure:"op_queue_size"`

	// OpMaxAttempts is retries per outbound notification.
	OpMaxAttempts int `mapstructure:"op_max_attempts"`

	// OpRetryDelay is the base delay between attempts.
	OpRetryDelay time.Duration `mapstructure:"op_retry_delay"`

	// ===== Logging =====

	// LogFile receives daemon logs (rotated). Empty logs to stderr.
	LogFile string `mapstructure:"log_file"`
}

// DefaultDataDir returns the platform data directory for clipd.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "clipd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clipd")
}

// Load reads configuration from path (or the default locations when
// path is empty), layered under CLIPD_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	dataDir := DefaultDataDir()

	v.SetDefault("db_path", filepath.Join(dataDir, "clipd.db"))
	v.SetDefault("server_url", "")
	v.SetDefault("teams", []string{})
	v.SetDefault("incognito", false)
	v.SetDefault("paste_command", defaultPasteCommand())
	v.SetDefault("poll_interval", 500*time.Millisecond)
	v.SetDefault("debounce_interval", 100*time.Millisecond)
	v.SetDefault("inbox_dir", "")
	v.SetDefault("op_queue_size", 256)
	v.SetDefault("op_max_attempts", 3)
	v.SetDefault("op_retry_delay", 2*time.Second)
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("CLIPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(dataDir)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing config is fine; defaults and env apply
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// defaultPasteCommand picks a paste tool for the current platform.
// Returns empty if none is found on PATH.
func defaultPasteCommand() string {
	candidates := []string{"pbpaste", "wl-paste", "xclip -selection clipboard -o", "xsel -b"}
	for _, c := range candidates {
		name := strings.Fields(c)[0]
		if _, err := exec.LookPath(name); err == nil {
			return c
		}
	}
	return ""
}
