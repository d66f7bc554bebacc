// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"zapdock/internal/config"

	"github.com/spf13/cobra"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage zapdock configuration",
		Long: `Manage zapdock configuration.

Configuration is stored in:
  - Linux: ~/.config/zapdock/config.toml
  - macOS: ~/Library/Application Support/zapdock/config.toml
  - Windows: %APPDATA%\zapdock\config.toml

Every key can also be set through a ZAPDOCK_* environment variable, for
example ZAPDOCK_CHANNEL=stable or ZAPDOCK_HEALTH_RETRIES=10.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig()
		},
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfigPath()
		},
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func showConfig() error {
	keyStyle := TagStyle
	valueStyle := SuccessStyle

	fmt.Println(TitleStyle.Render("Current Configuration"))
	fmt.Println()

	if path, ok := effectiveConfigFile(); ok {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Println()

	fmt.Printf("%s: %s\n", keyStyle.Render("channel"), valueStyle.Render(cfg.Channel.String()))
	fmt.Printf("%s: %s\n", keyStyle.Render("engine"), valueStyle.Render(cfg.Engine.String()))
	fmt.Printf("%s: %s\n", keyStyle.Render("manifest_url"), valueStyle.Render(cfg.ManifestURL))
	fmt.Printf("%s: %s\n", keyStyle.Render("bridge_url"), valueStyle.Render(cfg.BridgeURL))
	fmt.Printf("%s: %s\n", keyStyle.Render("cache_dir"), valueStyle.Render(cfg.CacheDir))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ports"))
	fmt.Printf("  proxy: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.ProxyPort)))
	fmt.Printf("  vnc: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.VNCPort)))
	fmt.Printf("  webswing: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.WebswingPort)))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("health"))
	fmt.Printf("  interval: %s\n", valueStyle.Render(cfg.Health.Interval.String()))
	fmt.Printf("  retries: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Health.Retries)))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ui"))
	fmt.Printf("  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))

	return nil
}

func showConfigPath() error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Printf("Config directory: %s\n", cfgDir)
	fmt.Printf("Config file: %s\n", filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt))
	return nil
}

// effectiveConfigFile reports the config file the current run read, if any.
func effectiveConfigFile() (string, bool) {
	if cfgFile != "" {
		return cfgFile, true
	}

	cfgDir, err := config.ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}
