package config

// NotificationConfig configures the delivery channels
type NotificationConfig struct {
	Telegram          TelegramConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Discord           DiscordConfig  `json:"discord,omitempty" yaml:"discord,omitempty"`
	RetryDelaySeconds int            `json:"retry_delay_seconds,omitempty" yaml:"retry_delay_seconds,omitempty" validate:"min=0"`
}

// TelegramConfig configures the Telegram bot channel
type TelegramConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BotToken    string `json:"bot_token,omitempty" yaml:"bot_token,omitempty" validate:"required_if=Enabled true"`
	ChatID      string `json:"chat_id,omitempty" yaml:"chat_id,omitempty" validate:"required_if=Enabled true"`
	APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`
}

// DiscordConfig configures the Discord webhook channel
type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty" validate:"required_if=Enabled true,webhookurl"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
}

// NewDefaultNotificationConfig creates default notification configuration
func NewDefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		Telegram:          TelegramConfig{},
		Discord:           DiscordConfig{Username: "Marketplace Monitor"},
		RetryDelaySeconds: 2,
	}
}

// HasEnabledChannel reports whether at least one channel is switched on
func (n NotificationConfig) HasEnabledChannel() bool {
	return n.Telegram.Enabled || n.Discord.Enabled
}
