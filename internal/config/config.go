// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"zapdock/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "zapdock"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"

	// DefaultManifestURL is the ZAP version-manifest XML feed.
	DefaultManifestURL = "https://raw.githubusercontent.com/zaproxy/zap-admin/master/ZapVersions.xml"
	// DefaultBridgeURL is the fixed download URL of the Webswing distribution.
	DefaultBridgeURL = "https://builds.webswing.org/releases/webswing-2.3-distribution.zip"
)

// ConfigDir returns the zapdock configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// DefaultCacheDir returns the directory for downloaded archives and build
// staging, honoring $XDG_CACHE_HOME on Linux.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", AppName)
}

// DefaultConfig returns a Config populated with built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Channel:      "weekly",
		Engine:       ContainerEngineDocker,
		ManifestURL:  DefaultManifestURL,
		BridgeURL:    DefaultBridgeURL,
		ProxyPort:    8080,
		VNCPort:      5900,
		WebswingPort: 8081,
		CacheDir:     DefaultCacheDir(),
		Health: HealthPolicy{
			Interval: 5 * time.Second,
			Retries:  5,
		},
	}
}

// Load resolves the effective configuration: defaults, then the config file
// if one exists, then ZAPDOCK_* environment variables. A missing config file
// is not an error; an unreadable or invalid one is.
func Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("channel", string(defaults.Channel))
	v.SetDefault("engine", string(defaults.Engine))
	v.SetDefault("manifest_url", defaults.ManifestURL)
	v.SetDefault("bridge_url", defaults.BridgeURL)
	v.SetDefault("proxy_port", defaults.ProxyPort)
	v.SetDefault("vnc_port", defaults.VNCPort)
	v.SetDefault("webswing_port", defaults.WebswingPort)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("health.interval", defaults.Health.Interval)
	v.SetDefault("health.retries", defaults.Health.Retries)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFileOverride != "" {
		v.SetConfigFile(configFileOverride)
		if err := v.ReadInConfig(); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(configFileOverride).
				WithSuggestion("Check that the file exists and contains valid TOML").
				WithSuggestion("Run 'zapdock config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	} else {
		cfgDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileExt)
		v.AddConfigPath(cfgDir)
		if err := v.ReadInConfig(); err != nil {
			// Defaults apply when no config file is present.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)).
					WithSuggestion("Check that the file contains valid TOML").
					Wrap(err).
					BuildError()
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Valid engines are docker, podman, and api").
			WithSuggestion("Health interval and retries must both be positive").
			Wrap(err).
			BuildError()
	}

	return &cfg, nil
}
