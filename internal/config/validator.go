package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/logger"
	"github.com/go-playground/validator/v10"
)

// newValidator registers the custom rules used by the config structs
func newValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logger.IsValidLevel(fl.Field().String())
	})

	_ = validate.RegisterValidation("logformat", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "console", "text", "json":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("fetcher", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", FetcherHTTP, FetcherColly:
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("webhookurl", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		if raw == "" {
			return true
		}
		parsed, err := url.Parse(raw)
		return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
	})

	return validate
}

// ValidateConfig validates the global settings. The sites slice carries no dive rule, so each
// site is checked separately with ValidateSite and a broken site does not stop the others.
func ValidateConfig(cfg *AppConfig) error {
	if cfg == nil {
		return common.NewConfigurationError("", "", "configuration is nil")
	}

	err := newValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		messages := make([]string, 0, len(errs))
		for _, e := range errs {
			messages = append(messages, describeFieldError(e))
		}
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(messages, "\n  "))
	}
	return fmt.Errorf("configuration validation error: %w", err)
}

// ValidateSite checks one site definition
func ValidateSite(site SiteConfig) error {
	err := newValidator().Struct(site)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return common.NewConfigurationError(site.Name, "", err.Error())
	}

	var collector common.ErrorCollector
	for _, e := range errs {
		collector.Add(common.NewConfigurationError(site.Name, yamlFieldName(e), siteRuleMessage(e)))
	}
	if len(collector.Errors()) == 1 {
		return collector.Errors()[0]
	}
	return common.NewConfigurationError(site.Name, "", collector.Error().Error())
}

func describeFieldError(e validator.FieldError) string {
	msg := fmt.Sprintf("Validation failed for '%s': rule '%s'", e.Namespace(), e.Tag())
	if e.Param() != "" {
		msg += fmt.Sprintf(" (expected: %s)", e.Param())
	}
	if e.Value() != nil && e.Value() != "" {
		msg += fmt.Sprintf(", actual: '%v'", e.Value())
	}
	return msg
}

func siteRuleMessage(e validator.FieldError) string {
	switch {
	case e.Field() == "CheckInterval" && e.Tag() == "min":
		return fmt.Sprintf("check interval must be at least %d seconds", MinCheckInterval)
	case e.Tag() == "required" || e.Tag() == "min":
		return "value is required"
	case e.Tag() == "url":
		return fmt.Sprintf("'%v' is not a valid URL", e.Value())
	}
	return fmt.Sprintf("rule '%s' failed", e.Tag())
}

var siteFieldNames = map[string]string{
	"Name":          "name",
	"URLs":          "urls",
	"Sizes":         "sizes",
	"CheckInterval": "check_interval",
}

func yamlFieldName(e validator.FieldError) string {
	field := e.StructField()
	if idx := strings.Index(field, "["); idx > 0 {
		field = field[:idx]
	}
	if name, ok := siteFieldNames[field]; ok {
		return name
	}
	return strings.ToLower(field)
}
