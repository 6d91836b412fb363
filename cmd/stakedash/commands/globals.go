package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/logging"
)

// Global CLI flags
var (
	// ConfigPath is the config file; empty selects ~/.stakedash/config.yaml.
	ConfigPath string

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464".
	MetricsAddr string

	// LogLevel overrides log.level from the config file.
	LogLevel string

	// NetworkName overrides active_network for one invocation.
	NetworkName string
)

func configPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if NetworkName != "" {
		if err := cfg.SetActive(NetworkName); err != nil {
			return nil, err
		}
	}
	if MetricsAddr != "" {
		cfg.Metrics.ListenAddr = MetricsAddr
	}
	if LogLevel != "" {
		cfg.Log.Level = LogLevel
	}
	if err := logging.Configure(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	return cfg, nil
}

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetCommit returns the git commit
func GetCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 8 {
					return setting.Value[:8]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}

func GetGoVersion() string {
	return runtime.Version()
}
