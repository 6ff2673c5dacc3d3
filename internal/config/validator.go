package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/cel-go/cel"
)

// RegisterCustomValidators registers wlproxy-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("cel_expr", validateCELExpr); err != nil {
		return fmt.Errorf("failed to register cel_expr validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "stdout", "file://<absolute-path>", or "sqlite://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}

	for _, scheme := range []string{"file://", "sqlite://"} {
		if strings.HasPrefix(output, scheme) {
			path := strings.TrimPrefix(output, scheme)
			return path != "" && filepath.IsAbs(path)
		}
	}

	return false
}

// celFilterEnv is a reusable environment for validating global-filter
// expressions at config-load time, independent of the evaluation
// environment constructed at runtime (which additionally binds live
// values). Declaring the variables here lets RegisterCustomValidators
// reject a malformed expression before the proxy ever dispatches a
// global event.
var celFilterEnv, celFilterEnvErr = cel.NewEnv(
	cel.Variable("name", cel.UintType),
	cel.Variable("interface", cel.StringType),
	cel.Variable("version", cel.UintType),
)

// validateCELExpr checks that a global-filter condition parses and
// type-checks against the (name, interface, version) environment.
func validateCELExpr(fl validator.FieldLevel) bool {
	if celFilterEnvErr != nil {
		return false
	}
	expr := fl.Field().String()
	_, issues := celFilterEnv.Compile(expr)
	return issues == nil || issues.Err() == nil
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error if validation fails, with actionable messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'file://<absolute-path>', or 'sqlite://<absolute-path>'", field)
	case "cel_expr":
		return fmt.Sprintf("%s must be a valid CEL expression over name/interface/version", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
