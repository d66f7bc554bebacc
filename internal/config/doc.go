// SPDX-License-Identifier: MPL-2.0

// Package config handles zapdock configuration loading and validation.
//
// Configuration is resolved from three layers, lowest precedence first:
// built-in defaults, a TOML config file, and ZAPDOCK_* environment
// variables. The config file lives at $XDG_CONFIG_HOME/zapdock/config.toml
// on Linux (platform-appropriate directories elsewhere).
package config
