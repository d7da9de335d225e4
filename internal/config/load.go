package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. SPOTLIGHT_WORKER_BINARY.
const EnvPrefix = "SPOTLIGHT"

// Load reads configuration from path. If path is empty, uses DefaultConfigPath.
// A missing file is not an error; defaults and environment overrides apply.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("window.title", cfg.Window.Title)
	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)
	v.SetDefault("window.x", cfg.Window.X)
	v.SetDefault("window.y", cfg.Window.Y)
	v.SetDefault("window.center", cfg.Window.Center)
	v.SetDefault("window.activation_policy", cfg.Window.ActivationPolicy)
	v.SetDefault("window.backend", cfg.Window.Backend)
	v.SetDefault("permission.prompt_on_start", cfg.Permission.PromptOnStart)
	v.SetDefault("permission.recheck_interval", cfg.Permission.RecheckInterval)
	v.SetDefault("worker.enabled", cfg.Worker.Enabled)
	v.SetDefault("worker.required", cfg.Worker.Required)
	v.SetDefault("worker.binary", cfg.Worker.Binary)
	v.SetDefault("worker.args", cfg.Worker.Args)
	v.SetDefault("worker.env", cfg.Worker.Env)
	v.SetDefault("worker.ack_threshold", cfg.Worker.AckThreshold)
	v.SetDefault("worker.ack_message", cfg.Worker.AckMessage)
	v.SetDefault("worker.event_name", cfg.Worker.EventName)
	v.SetDefault("worker.shutdown_timeout", cfg.Worker.ShutdownTimeout)
	v.SetDefault("ipc.socket_path", cfg.IPC.SocketPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.path", cfg.Logging.Path)
	v.SetDefault("logging.error_path", cfg.Logging.ErrorPath)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%s: failed to read config: %w", path, err)
		}
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("%s: config_version is required; expected %d", path, CurrentConfigVersion)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Worker.Binary = ExpandHome(cfg.Worker.Binary)
	cfg.IPC.SocketPath = ExpandHome(cfg.IPC.SocketPath)
	cfg.Logging.Path = ExpandHome(cfg.Logging.Path)
	cfg.Logging.ErrorPath = ExpandHome(cfg.Logging.ErrorPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write saves cfg as YAML at path, creating parent directories.
// Refuses to overwrite an existing file unless force is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
