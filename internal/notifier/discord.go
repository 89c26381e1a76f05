package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/httpclient"
	"github.com/aleister1102/marketplace-monitor/internal/notifier/discord"
	"github.com/rs/zerolog"
)

// DiscordChannelName identifies the Discord channel in logs and test results
const DiscordChannelName = "discord"

// DiscordChannel posts embeds to a Discord webhook
type DiscordChannel struct {
	cfg    config.DiscordConfig
	client *httpclient.HTTPClient
	logger zerolog.Logger
	now    func() time.Time
}

// NewDiscordChannel creates the channel. A nil client gets a plain client without browser headers.
func NewDiscordChannel(cfg config.DiscordConfig, client *httpclient.HTTPClient, logger zerolog.Logger) (*DiscordChannel, error) {
	moduleLogger := logger.With().Str("component", "DiscordChannel").Logger()
	if client == nil {
		clientCfg := httpclient.DefaultHTTPClientConfig()
		clientCfg.Timeout = defaultChannelTimeout
		clientCfg.CustomHeaders = nil
		clientCfg.UserAgent = "marketplace-monitor"

		var err error
		client, err = httpclient.NewHTTPClient(clientCfg, moduleLogger)
		if err != nil {
			return nil, common.WrapError(err, "failed to create discord http client")
		}
	}

	return &DiscordChannel{
		cfg:    cfg,
		client: client,
		logger: moduleLogger,
		now:    time.Now,
	}, nil
}

// Name implements Channel
func (d *DiscordChannel) Name() string {
	return DiscordChannelName
}

// Send implements Channel
func (d *DiscordChannel) Send(ctx context.Context, msg Message) bool {
	if err := d.post(ctx, d.payload(msg)); err != nil {
		d.logger.Error().Err(err).Str("site", msg.Site).Msg("Failed to send Discord notification")
		return false
	}
	d.logger.Debug().Str("product", msg.Product).Str("size", msg.Size).Msg("Discord notification sent")
	return true
}

// Test sends a test message to the webhook
func (d *DiscordChannel) Test(ctx context.Context) bool {
	return d.Send(ctx, NewTestMessage(d.now()))
}

func (d *DiscordChannel) payload(msg Message) discord.Payload {
	color := discord.AvailableColor
	if msg.Test {
		color = discord.TestColor
	}

	embed, err := discord.NewEmbedBuilder().
		WithTitle(truncate(msg.Title, 256)).
		WithURL(msg.URL).
		WithColor(color).
		WithTimestamp(msg.Timestamp).
		AddField("Product", truncate(msg.Product, 1024), false).
		AddField("Size", truncate(msg.Size, 1024), true).
		AddField("Site", truncate(msg.Site, 1024), true).
		AddField("Price", truncate(msg.Price, 1024), true).
		WithFooter(messageFooter).
		Build()

	builder := discord.NewPayloadBuilder().WithUsername(d.cfg.Username)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Embed rejected, falling back to plain content")
		return builder.WithContent(truncate(msg.String(), 2000)).Build()
	}
	return builder.AddEmbed(embed).Build()
}

func (d *DiscordChannel) post(ctx context.Context, payload discord.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return common.WrapError(err, "failed to marshal discord payload")
	}

	resp, err := d.client.Do(&httpclient.HTTPRequest{
		URL:     d.cfg.WebhookURL,
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    bytes.NewReader(body),
		Context: ctx,
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return common.NewHTTPErrorWithURL(resp.StatusCode, string(resp.Body), "discord webhook")
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
