package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramChannelName identifies the Telegram channel in logs and test results
const TelegramChannelName = "telegram"

const defaultChannelTimeout = 20 * time.Second

var linkTargetEscaper = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// TelegramChannel sends MarkdownV2 messages through the Bot API
type TelegramChannel struct {
	cfg    config.TelegramConfig
	client tgbotapi.HTTPClient
	logger zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates the channel. The bot token is verified on first use.
func NewTelegramChannel(cfg config.TelegramConfig, client tgbotapi.HTTPClient, logger zerolog.Logger) *TelegramChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	return &TelegramChannel{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "TelegramChannel").Logger(),
		now:    time.Now,
	}
}

// Name implements Channel
func (t *TelegramChannel) Name() string {
	return TelegramChannelName
}

// api connects lazily so that a bad token surfaces as a failed delivery instead of a startup error
func (t *TelegramChannel) api() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}

	endpoint := t.cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.BotToken, endpoint, t.client)
	if err != nil {
		return nil, common.WrapError(err, "failed to connect telegram bot")
	}
	t.logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram bot connected")
	t.bot = bot
	return bot, nil
}

// Send implements Channel
func (t *TelegramChannel) Send(ctx context.Context, msg Message) bool {
	if ctx.Err() != nil {
		return false
	}

	bot, err := t.api()
	if err != nil {
		t.logger.Error().Err(err).Msg("Telegram bot unavailable")
		return false
	}

	outgoing, err := t.messageConfig(FormatTelegram(msg))
	if err != nil {
		t.logger.Error().Err(err).Msg("Invalid telegram chat id")
		return false
	}

	if _, err := bot.Send(outgoing); err != nil {
		t.logger.Error().Err(err).Str("site", msg.Site).Msg("Failed to send Telegram message")
		return false
	}

	t.logger.Debug().Str("product", msg.Product).Str("size", msg.Size).Msg("Telegram message sent")
	return true
}

// Test calls getMe, then sends a test message
func (t *TelegramChannel) Test(ctx context.Context) bool {
	bot, err := t.api()
	if err != nil {
		t.logger.Error().Err(err).Msg("Telegram connection test failed")
		return false
	}

	me, err := bot.GetMe()
	if err != nil {
		t.logger.Error().Err(err).Msg("Telegram getMe failed")
		return false
	}
	t.logger.Info().Str("bot", me.UserName).Msg("Telegram bot reachable")

	return t.Send(ctx, NewTestMessage(t.now()))
}

func (t *TelegramChannel) messageConfig(text string) (tgbotapi.MessageConfig, error) {
	var msg tgbotapi.MessageConfig
	chatID := strings.TrimSpace(t.cfg.ChatID)
	switch {
	case strings.HasPrefix(chatID, "@"):
		msg = tgbotapi.NewMessageToChannel(chatID, text)
	default:
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return msg, common.NewValidationError("chat_id", chatID, "must be a numeric id or an @channel name")
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return msg, nil
}

// FormatTelegram renders msg as MarkdownV2
func FormatTelegram(msg Message) string {
	esc := func(s string) string {
		return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
	}

	title := "🔥 *Size Available\\!*"
	if msg.Test {
		title = "🧪 *Test Message*"
	}

	price := msg.Price
	if price == "" {
		price = "N/A"
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "📦 *Product*: %s\n", esc(msg.Product))
	fmt.Fprintf(&b, "👟 *Size*: %s\n", esc(msg.Size))
	fmt.Fprintf(&b, "🏪 *Site*: %s\n", esc(msg.Site))
	fmt.Fprintf(&b, "💰 *Price*: %s\n", esc(price))
	b.WriteString("\n")
	fmt.Fprintf(&b, "🔗 [View Product](%s)\n", linkTargetEscaper.Replace(msg.URL))
	b.WriteString("\n")
	fmt.Fprintf(&b, "⚡ _%s_", esc(messageFooter))
	return b.String()
}
