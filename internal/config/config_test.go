package config

import "testing"

func TestSetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()

	if c.Buffers.HighWaterMarkBytes != 4<<20 {
		t.Errorf("HighWaterMarkBytes = %d, want %d", c.Buffers.HighWaterMarkBytes, 4<<20)
	}
	if c.Audit.Output != "stdout" {
		t.Errorf("Audit.Output = %q, want stdout", c.Audit.Output)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
	if c.Telemetry.ServiceName != "wlproxy" {
		t.Errorf("ServiceName = %q, want wlproxy", c.Telemetry.ServiceName)
	}
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{
		Buffers: BufferConfig{HighWaterMarkBytes: 1 << 10},
		Audit:   AuditConfig{Output: "file:///tmp/audit.log"},
		LogLevel: "error",
	}
	c.SetDefaults()

	if c.Buffers.HighWaterMarkBytes != 1<<10 {
		t.Errorf("HighWaterMarkBytes overwritten: %d", c.Buffers.HighWaterMarkBytes)
	}
	if c.Audit.Output != "file:///tmp/audit.log" {
		t.Errorf("Audit.Output overwritten: %q", c.Audit.Output)
	}
	if c.LogLevel != "error" {
		t.Errorf("LogLevel overwritten: %q", c.LogLevel)
	}
}
