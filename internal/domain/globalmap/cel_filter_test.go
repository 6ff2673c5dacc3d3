package globalmap

import "testing"

func TestFilter_HideRule_Matches(t *testing.T) {
	f, err := NewFilter([]ConfiguredRule{
		{Name: "hide-gamma", Condition: `interface == "wl_gamma_control_manager_v1"`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	action, rule, err := f.Evaluate(3, "wl_gamma_control_manager_v1", 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if action != ActionHide {
		t.Errorf("action = %v, want ActionHide", action)
	}
	if rule == nil || rule.Name != "hide-gamma" {
		t.Errorf("expected matching rule hide-gamma, got %+v", rule)
	}
}

func TestFilter_NoMatch_DefaultsToForward(t *testing.T) {
	f, err := NewFilter([]ConfiguredRule{
		{Name: "hide-gamma", Condition: `interface == "wl_gamma_control_manager_v1"`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	action, rule, err := f.Evaluate(3, "wl_shm", 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if action != ActionForward {
		t.Errorf("action = %v, want ActionForward", action)
	}
	if rule != nil {
		t.Errorf("expected no matching rule, got %+v", rule)
	}
}

func TestFilter_VersionGatedRule(t *testing.T) {
	f, err := NewFilter([]ConfiguredRule{
		{Name: "hide-old-shm", Condition: `interface == "wl_shm" && version < uint(2)`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	action, _, err := f.Evaluate(1, "wl_shm", 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if action != ActionHide {
		t.Errorf("version 1: action = %v, want ActionHide", action)
	}

	action, _, err = f.Evaluate(1, "wl_shm", 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if action != ActionForward {
		t.Errorf("version 2: action = %v, want ActionForward", action)
	}
}

func TestNewFilter_InvalidExpression_Errors(t *testing.T) {
	_, err := NewFilter([]ConfiguredRule{
		{Name: "broken", Condition: `interface ==`, Action: "hide"},
	})
	if err == nil {
		t.Fatal("expected a compile error for a malformed CEL expression")
	}
}

func TestFilter_RulesEvaluateInOrder_FirstMatchWins(t *testing.T) {
	f, err := NewFilter([]ConfiguredRule{
		{Name: "forward-shm", Condition: `interface == "wl_shm"`, Action: "forward"},
		{Name: "hide-all", Condition: `true`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	action, rule, err := f.Evaluate(1, "wl_shm", 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if action != ActionForward || rule.Name != "forward-shm" {
		t.Errorf("expected the first matching rule (forward-shm) to win, got %+v / %v", rule, action)
	}
}
