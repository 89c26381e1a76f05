package notifier

import (
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/rs/zerolog"
)

// FromConfig builds a dispatcher over the enabled channels of cfg
func FromConfig(cfg *config.AppConfig, logger zerolog.Logger) (*Dispatcher, error) {
	var channels []Channel
	notifications := cfg.Notifications

	if notifications.Telegram.Enabled {
		channels = append(channels, NewTelegramChannel(notifications.Telegram, nil, logger))
	}
	if notifications.Discord.Enabled {
		ch, err := NewDiscordChannel(notifications.Discord, nil, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	if len(channels) == 0 {
		logger.Warn().Msg("No notification channels enabled, availability changes will only be logged")
	}

	retryDelay := time.Duration(notifications.RetryDelaySeconds) * time.Second
	return NewDispatcher(channels, cfg.RetryAttempts, retryDelay, logger), nil
}
