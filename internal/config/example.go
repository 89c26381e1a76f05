package config

import (
	"os"
	"path/filepath"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"gopkg.in/yaml.v3"
)

// ExampleConfig returns the configuration written by the init command
func ExampleConfig() *AppConfig {
	cfg := NewDefaultAppConfig()
	cfg.Sites = []SiteConfig{
		{
			Name:   "Example Store",
			Parser: "generic",
			URLs: []string{
				"https://example-store.com/product/sneakers-123",
				"https://example-store.com/product/sneakers-456",
			},
			Sizes:         []string{"US 9", "US 10", "US 11"},
			CheckInterval: 300,
			Enabled:       Bool(true),
		},
		{
			Name:          "Nike",
			Parser:        "nike",
			URLs:          []string{"https://www.nike.com/t/air-max-90-mens-shoes-6n3vKB/CN8490-002"},
			Sizes:         []string{"42", "43", "44"},
			CheckInterval: 600,
			Enabled:       Bool(false),
			Headers:       map[string]string{"Accept-Language": "en-US,en;q=0.9"},
		},
	}
	cfg.Notifications.Telegram = TelegramConfig{
		Enabled:  true,
		BotToken: "${TELEGRAM_BOT_TOKEN}",
		ChatID:   "${TELEGRAM_CHAT_ID}",
	}
	return cfg
}

// WriteExampleConfig writes the example configuration to path. Existing files are kept unless force is set.
func WriteExampleConfig(path string, force bool) error {
	if fileExists(path) && !force {
		return common.NewValidationError("path", path, "file already exists, use --force to overwrite")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.WrapError(err, "failed to create config directory")
		}
	}

	data, err := Marshal(ExampleConfig(), FormatYAML)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return common.WrapError(err, "failed to write example config")
	}
	return nil
}

// marshalYAML encodes with two-space indentation
func marshalYAML(v interface{}) ([]byte, error) {
	var buf yamlBuffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, common.WrapError(err, "failed to encode YAML")
	}
	if err := enc.Close(); err != nil {
		return nil, common.WrapError(err, "failed to encode YAML")
	}
	return buf.data, nil
}

type yamlBuffer struct {
	data []byte
}

func (b *yamlBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
