package config

import "testing"

func TestValidateAuditOutput(t *testing.T) {
	cases := []struct {
		output string
		valid  bool
	}{
		{"stdout", true},
		{"file:///var/log/wlproxy/audit.log", true},
		{"sqlite:///var/lib/wlproxy/audit.db", true},
		{"file://relative/path", false},
		{"carrier-pigeon", false},
		{"", false},
	}

	for _, tc := range cases {
		cfg := Config{
			Audit:   AuditConfig{Output: tc.output},
			LogLevel: "info",
		}
		err := cfg.Validate()
		if tc.valid && err != nil {
			t.Errorf("Output=%q: unexpected error: %v", tc.output, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("Output=%q: expected validation error, got nil", tc.output)
		}
	}
}

func TestValidateCELExpr(t *testing.T) {
	cases := []struct {
		condition string
		valid     bool
	}{
		{`interface == "wl_shm"`, true},
		{`version < 2u && name > 0u`, true},
		{"not valid cel (((", false},
		{"", false},
	}

	for _, tc := range cases {
		cfg := Config{
			Audit: AuditConfig{Output: "stdout"},
		}
		if tc.condition != "" {
			cfg.GlobalFilter = []GlobalFilterRule{{
				Name:      "rule",
				Condition: tc.condition,
				Action:    "hide",
			}}
		} else {
			cfg.GlobalFilter = []GlobalFilterRule{{
				Name:      "rule",
				Condition: tc.condition,
				Action:    "hide",
			}}
		}
		err := cfg.Validate()
		if tc.valid && err != nil {
			t.Errorf("Condition=%q: unexpected error: %v", tc.condition, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("Condition=%q: expected validation error, got nil", tc.condition)
		}
	}
}
