// Package config provides configuration types for wlproxy.
//
// Configuration is intentionally small: the core protocol engine needs a
// socket to listen on, a compositor to dial, buffer limits for backpressure
// (§5), a declarative global-filter policy (§4.5), and sinks for audit and
// telemetry output. Anything beyond that — the concrete set of supported
// interfaces, the handler scripts that inspect individual messages — is
// external user code per §1/§6 and has no config surface here.
package config

import "github.com/spf13/viper"

// Config is the top-level wlproxy configuration.
type Config struct {
	// Listen configures the local-facing unix socket the proxy accepts
	// client connections on.
	Listen ListenConfig `yaml:"listen" mapstructure:"listen"`

	// Upstream configures the real compositor socket the proxy dials once
	// per accepted client.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Buffers configures the per-endpoint backpressure limits of §5.
	Buffers BufferConfig `yaml:"buffers" mapstructure:"buffers"`

	// SyntheticGlobals lists globals the proxy advertises itself, served
	// locally and never reaching the upstream compositor (§4.5).
	SyntheticGlobals []SyntheticGlobalConfig `yaml:"synthetic_globals" mapstructure:"synthetic_globals" validate:"omitempty,dive"`

	// GlobalFilter is a declarative, CEL-evaluated default policy for
	// hiding (or explicitly forwarding) server-advertised globals. Rules are evaluated in
	// order; first match wins. This supplements, but does not replace,
	// the programmatic GlobalMapper API exposed to host programs.
	GlobalFilter []GlobalFilterRule `yaml:"global_filter" mapstructure:"global_filter" validate:"omitempty,dive"`

	// Audit configures the dispatch trace sink.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// State configures persistence of synthetic-global name assignments
	// across proxy restarts.
	State StateConfig `yaml:"state" mapstructure:"state"`

	// Telemetry configures metrics and tracing export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// LogLevel sets the minimum slog level: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables verbose (debug-level, text-format) logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ListenConfig configures the client-facing listening socket.
type ListenConfig struct {
	// SocketPath overrides the listen socket path. When empty, it is
	// derived from $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY (or "wayland-0" if
	// WAYLAND_DISPLAY is unset), per §6.
	SocketPath string `yaml:"socket_path" mapstructure:"socket_path"`
}

// UpstreamConfig configures the real compositor socket dialed per client.
type UpstreamConfig struct {
	// SocketPath overrides the upstream dial path. When empty, it is
	// derived the same way as ListenConfig.SocketPath, from the
	// environment the proxy itself was launched with (the display it is
	// intercepting).
	SocketPath string `yaml:"socket_path" mapstructure:"socket_path"`
}

// BufferConfig configures per-endpoint backpressure (§5).
type BufferConfig struct {
	// HighWaterMarkBytes is the outbound-buffer size above which the
	// corresponding inbound socket suspends reads. Defaults to 4 MiB.
	HighWaterMarkBytes int `yaml:"high_water_mark_bytes" mapstructure:"high_water_mark_bytes" validate:"omitempty,min=4096"`
}

// SyntheticGlobalConfig declares a global the proxy advertises itself.
type SyntheticGlobalConfig struct {
	// Interface is the wire interface name (e.g. "zwlr_data_control_manager_v1").
	Interface string `yaml:"interface" mapstructure:"interface" validate:"required"`
	// Version is the version advertised to clients.
	Version uint32 `yaml:"version" mapstructure:"version" validate:"required,min=1"`
}

// GlobalFilterRule is one rule of the declarative global-filter policy.
type GlobalFilterRule struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Condition is a CEL expression over `name` (uint), `interface`
	// (string), and `version` (uint) describing which server-advertised
	// globals this rule matches.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required,cel_expr"`
	// Action is "hide" (never forward to the client) or "forward" (the
	// default behavior, listed explicitly for rule ordering/overrides).
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=hide forward"`
}

// AuditConfig configures the dispatch trace sink.
type AuditConfig struct {
	// Output selects the sink: "stdout", "file://<absolute-path>", or
	// "sqlite://<absolute-path>".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`
}

// StateConfig configures cross-restart persistence of global-mapper state.
type StateConfig struct {
	// Path is the state file location. Defaults to
	// "$XDG_RUNTIME_DIR/wlproxy-state.json" when empty.
	Path string `yaml:"path" mapstructure:"path"`
}

// TelemetryConfig configures metrics and tracing export.
type TelemetryConfig struct {
	// MetricsAddr is the address the Prometheus /metrics handler listens
	// on (e.g. "127.0.0.1:9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	// TracingEnabled turns on one OpenTelemetry span per dispatched frame,
	// exported via the stdout trace exporter, and the OpenTelemetry stdout
	// metrics exporter.
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	// ServiceName is the OpenTelemetry resource service.name attribute.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// SetDefaults applies sensible default values to the configuration.
// Must be called after loading, before Validate.
func (c *Config) SetDefaults() {
	if c.Buffers.HighWaterMarkBytes == 0 {
		c.Buffers.HighWaterMarkBytes = 4 << 20
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "wlproxy"
	}
	if c.DevMode {
		if !viper.IsSet("log_level") {
			c.LogLevel = "debug"
		}
	}
}
