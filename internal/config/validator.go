package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	validLogFormats = []string{"console", "text", "json"}
)

// oneOfFold accepts an empty string or a case insensitive match in allowed
func oneOfFold(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return true
			}
		}
		return false
	}
}

// NewValidator returns a validator with the loglevel and logformat rules
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loglevel", oneOfFold(validLogLevels))
	_ = v.RegisterValidation("logformat", oneOfFold(validLogFormats))
	return v
}

// ValidateConfig checks cfg against its struct tags. Every failing field is
// listed in the returned error.
func ValidateConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return common.NewValidationError("config", nil, "configuration is nil")
	}

	err := NewValidator().Struct(cfg)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fieldErrs):
		lines := FormatValidationErrors(fieldErrs)
		return common.WrapErrorf(common.ErrInvalidInput, "invalid configuration:\n  %s", strings.Join(lines, "\n  "))
	default:
		return common.WrapError(err, "validate configuration")
	}
}

// FormatValidationErrors renders one line per failing field
func FormatValidationErrors(errs validator.ValidationErrors) []string {
	out := make([]string, len(errs))
	for i, fe := range errs {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: failed %q", fe.Namespace(), fe.Tag())
		if p := fe.Param(); p != "" {
			fmt.Fprintf(&b, " (%s)", p)
		}
		if v := fe.Value(); v != nil && v != "" {
			fmt.Fprintf(&b, ", got %v", v)
		}
		out[i] = b.String()
	}
	return out
}
