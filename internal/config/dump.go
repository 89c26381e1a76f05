package config

import (
	"encoding/json"
	"strings"

	"github.com/aleister1102/marketplace-monitor/internal/common"
)

// Output formats for Marshal
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const secretMask = "****"

// Marshal renders the configuration in the given format
func Marshal(cfg *AppConfig, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatYAML, "yml":
		return marshalYAML(cfg)
	case FormatJSON:
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, common.WrapError(err, "failed to encode JSON")
		}
		return append(data, '\n'), nil
	}
	return nil, common.NewValidationError("format", format, "supported formats are yaml and json")
}

// Dump renders the configuration with credentials masked
func Dump(cfg *AppConfig, format string) ([]byte, error) {
	return Marshal(Masked(cfg), format)
}

// Masked returns a copy of cfg with credentials replaced
func Masked(cfg *AppConfig) *AppConfig {
	masked := *cfg
	masked.Notifications.Telegram.BotToken = maskSecret(cfg.Notifications.Telegram.BotToken)
	masked.Notifications.Discord.WebhookURL = maskSecret(cfg.Notifications.Discord.WebhookURL)
	masked.Redis.Password = maskSecret(cfg.Redis.Password)
	return &masked
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return secretMask
	}
	return secretMask + value[len(value)-4:]
}
