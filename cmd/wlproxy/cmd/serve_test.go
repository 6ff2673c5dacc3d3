package cmd

import (
	"log/slog"
	"testing"

	"github.com/wlproxy/wlproxy/internal/config"
)

func TestServeCmd_Registered(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "serve" {
			found = true
			break
		}
	}
	if !found {
		t.Error("serve command not registered with rootCmd")
	}
}

func TestBuildAuditStore_Stdout(t *testing.T) {
	store, err := buildAuditStore("stdout", slog.Default())
	if err != nil {
		t.Fatalf("buildAuditStore(stdout): %v", err)
	}
	defer store.Close()
}

func TestBuildAuditStore_UnrecognizedScheme(t *testing.T) {
	if _, err := buildAuditStore("carrier-pigeon://nowhere", slog.Default()); err == nil {
		t.Error("expected an error for an unrecognized audit output scheme")
	}
}

func TestBuildFilter_NoRulesReturnsNilWithoutError(t *testing.T) {
	filter, err := buildFilter(nil)
	if err != nil {
		t.Fatalf("buildFilter(nil): %v", err)
	}
	if filter != nil {
		t.Error("expected a nil Filter when no rules are configured")
	}
}

func TestBuildFilter_CompilesConfiguredRules(t *testing.T) {
	rules := []config.GlobalFilterRule{
		{Name: "hide-shm", Condition: `interface == "wl_shm"`, Action: "hide"},
	}
	filter, err := buildFilter(rules)
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	if filter == nil {
		t.Fatal("expected a non-nil Filter when rules are configured")
	}
}

func TestNewLogger_LevelsAndMode(t *testing.T) {
	for _, level := range []string{"debug", "warn", "warning", "error", "info", ""} {
		for _, dev := range []bool{true, false} {
			if logger := newLogger(level, dev); logger == nil {
				t.Errorf("newLogger(%q, %v) returned nil", level, dev)
			}
		}
	}
}
