// Package config provides configuration loading for wlproxy.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for wlproxy.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("wlproxy")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: WLPROXY_LISTEN_SOCKET_PATH
	viper.SetEnvPrefix("WLPROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a wlproxy config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper
// from matching the binary "wlproxy" (no extension) in the current
// directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".wlproxy"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "wlproxy"))
		}
	} else {
		paths = append(paths, "/etc/wlproxy")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for wlproxy.yaml
// or .yml. Returns the full path of the first match, or empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "wlproxy"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys most useful to override via
// environment variables (arrays such as synthetic_globals and
// global_filter are left to the config file).
func bindNestedEnvKeys() {
	_ = viper.BindEnv("listen.socket_path")
	_ = viper.BindEnv("upstream.socket_path")
	_ = viper.BindEnv("buffers.high_water_mark_bytes")
	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("state.path")
	_ = viper.BindEnv("telemetry.metrics_addr")
	_ = viper.BindEnv("telemetry.tracing_enabled")
	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// Load reads the configuration file, applies environment overrides,
// defaults, and validates the result.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine: wlproxy can run on environment
		// variables and defaults alone (WAYLAND_DISPLAY convention).
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// ErrMissingRuntimeDir is returned by ResolveSocketPath when
// XDG_RUNTIME_DIR is unset and no absolute override was given.
var ErrMissingRuntimeDir = errors.New("XDG_RUNTIME_DIR is not set")

// ResolveSocketPath implements the §6 WAYLAND_DISPLAY/XDG_RUNTIME_DIR
// convention: an absolute override wins outright; a relative override is
// joined to XDG_RUNTIME_DIR; with no override, the path is
// $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY, falling back to "wayland-0" for the
// display name when WAYLAND_DISPLAY is unset.
func ResolveSocketPath(override string) (string, error) {
	if override != "" && filepath.IsAbs(override) {
		return override, nil
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", ErrMissingRuntimeDir
	}

	if override != "" {
		return filepath.Join(runtimeDir, override), nil
	}

	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	return filepath.Join(runtimeDir, display), nil
}
