// Package config loads and validates spotlight configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// CurrentConfigVersion is the only config_version this build understands.
const CurrentConfigVersion = 1

// Window backends.
const (
	BackendAuto     = "auto"
	BackendX11      = "x11"
	BackendHeadless = "headless"
)

// Config is the full spotlight configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	Window        WindowConfig     `mapstructure:"window" yaml:"window"`
	Permission    PermissionConfig `mapstructure:"permission" yaml:"permission"`
	Worker        WorkerConfig     `mapstructure:"worker" yaml:"worker"`
	IPC           IPCConfig        `mapstructure:"ipc" yaml:"ipc"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// WindowConfig describes the spotlight window.
type WindowConfig struct {
	Title            string `mapstructure:"title" yaml:"title"`
	Width            int    `mapstructure:"width" yaml:"width"`
	Height           int    `mapstructure:"height" yaml:"height"`
	X                int    `mapstructure:"x" yaml:"x"`
	Y                int    `mapstructure:"y" yaml:"y"`
	Center           bool   `mapstructure:"center" yaml:"center"`
	ActivationPolicy string `mapstructure:"activation_policy" yaml:"activation_policy"`
	Backend          string `mapstructure:"backend" yaml:"backend"`
}

// PermissionConfig controls the accessibility permission gate.
type PermissionConfig struct {
	PromptOnStart   bool          `mapstructure:"prompt_on_start" yaml:"prompt_on_start"`
	RecheckInterval time.Duration `mapstructure:"recheck_interval" yaml:"recheck_interval"` // 0 disables
}

// WorkerConfig describes the background worker and its line protocol.
type WorkerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Required        bool          `mapstructure:"required" yaml:"required"` // Abort startup on spawn failure
	Binary          string        `mapstructure:"binary" yaml:"binary"`     // Empty = built-in demo worker
	Args            []string      `mapstructure:"args" yaml:"args"`
	Env             []string      `mapstructure:"env" yaml:"env"`
	AckThreshold    int           `mapstructure:"ack_threshold" yaml:"ack_threshold"`
	AckMessage      string        `mapstructure:"ack_message" yaml:"ack_message"`
	EventName       string        `mapstructure:"event_name" yaml:"event_name"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// IPCConfig holds the command socket location.
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
}

// LoggingConfig controls the zap logger used by `spotlight run`.
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Path      string `mapstructure:"path" yaml:"path"`
	ErrorPath string `mapstructure:"error_path" yaml:"error_path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Window: WindowConfig{
			Title:            "Spotlight",
			Width:            750,
			Height:           500,
			Center:           true,
			ActivationPolicy: string(domain.PolicyAccessory),
			Backend:          BackendAuto,
		},
		Permission: PermissionConfig{
			PromptOnStart: true,
		},
		Worker: WorkerConfig{
			Enabled:         true,
			Args:            []string{},
			Env:             []string{},
			AckThreshold:    4,
			AckMessage:      "message from Rust",
			EventName:       "message",
			ShutdownTimeout: 3 * time.Second,
		},
		IPC: IPCConfig{
			SocketPath: DefaultSocketPath(),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Path:      "/var/tmp/spotlight.log",
			ErrorPath: "/var/tmp/spotlight.error.log",
		},
	}
}

// DefaultConfigPath returns ~/.config/spotlight/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "spotlight", "config.yaml"), nil
}

// DefaultSocketPath returns the per-user command socket path.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "spotlight.sock")
	}
	return filepath.Join(os.TempDir(), "spotlight-"+strconv.Itoa(os.Getuid())+".sock")
}

// Validate checks value ranges and enums.
func (c Config) Validate() error {
	if c.ConfigVersion != CurrentConfigVersion {
		return fmt.Errorf("unsupported config_version %d; expected %d", c.ConfigVersion, CurrentConfigVersion)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	switch domain.ActivationPolicy(c.Window.ActivationPolicy) {
	case domain.PolicyAccessory, domain.PolicyRegular:
	default:
		return fmt.Errorf("unknown window.activation_policy %q (expected accessory or regular)", c.Window.ActivationPolicy)
	}
	switch c.Window.Backend {
	case BackendAuto, BackendX11, BackendHeadless:
	default:
		return fmt.Errorf("unknown window.backend %q (expected auto, x11 or headless)", c.Window.Backend)
	}
	if c.Permission.RecheckInterval < 0 {
		return fmt.Errorf("permission.recheck_interval must not be negative")
	}
	if c.Worker.AckThreshold < 1 {
		return fmt.Errorf("worker.ack_threshold must be at least 1, got %d", c.Worker.AckThreshold)
	}
	if c.Worker.AckMessage == "" {
		return fmt.Errorf("worker.ack_message must not be empty")
	}
	if strings.ContainsAny(c.Worker.AckMessage, "\r\n") {
		return fmt.Errorf("worker.ack_message must be a single line")
	}
	if c.Worker.EventName == "" {
		return fmt.Errorf("worker.event_name must not be empty")
	}
	if c.Worker.ShutdownTimeout < 0 {
		return fmt.Errorf("worker.shutdown_timeout must not be negative")
	}
	if c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// WindowSpec converts the window section into a domain.WindowSpec.
func (c Config) WindowSpec() domain.WindowSpec {
	return domain.WindowSpec{
		Title:  c.Window.Title,
		Width:  c.Window.Width,
		Height: c.Window.Height,
		X:      c.Window.X,
		Y:      c.Window.Y,
		Center: c.Window.Center,
	}
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
