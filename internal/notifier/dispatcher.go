// Package notifier delivers availability notifications to the configured channels.
package notifier

import (
	"context"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Channel is one notification transport
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) bool
	Test(ctx context.Context) bool
}

// TestResult is the outcome of testing one channel
type TestResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
}

// Dispatcher fans a message out to every channel with linear retry backoff
type Dispatcher struct {
	channels      []Channel
	retryAttempts int
	retryDelay    time.Duration
	logger        zerolog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. Each channel gets 1 + retryAttempts tries.
func NewDispatcher(channels []Channel, retryAttempts int, retryDelay time.Duration, logger zerolog.Logger) *Dispatcher {
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	return &Dispatcher{
		channels:      channels,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		logger:        logger.With().Str("component", "Dispatcher").Logger(),
		sleep:         sleepContext,
	}
}

// Channels returns the channel names in dispatch order
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify sends the event to every channel. It reports true only when all channels delivered.
func (d *Dispatcher) Notify(ctx context.Context, event models.ChangeEvent) bool {
	return d.Send(ctx, NewMessage(event))
}

// Send delivers msg to every channel exactly once, retrying failures
func (d *Dispatcher) Send(ctx context.Context, msg Message) bool {
	if len(d.channels) == 0 {
		d.logger.Warn().Str("site", msg.Site).Str("size", msg.Size).Msg("No notification channels configured")
		return false
	}

	delivered := true
	for _, ch := range d.channels {
		if !d.deliver(ctx, ch, msg) {
			delivered = false
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message) bool {
	tries := 1 + d.retryAttempts
	for attempt := 1; attempt <= tries; attempt++ {
		if ch.Send(ctx, msg) {
			d.logger.Info().
				Str("channel", ch.Name()).
				Str("site", msg.Site).
				Str("size", msg.Size).
				Int("attempt", attempt).
				Msg("Notification delivered")
			return true
		}
		if attempt == tries {
			break
		}

		delay := d.retryDelay * time.Duration(attempt)
		d.logger.Warn().
			Str("channel", ch.Name()).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Notification delivery failed, retrying")
		if err := d.sleep(ctx, delay); err != nil {
			d.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification retry interrupted")
			return false
		}
	}

	d.logger.Error().
		Str("channel", ch.Name()).
		Str("site", msg.Site).
		Str("size", msg.Size).
		Str("url", msg.URL).
		Int("attempts", tries).
		Msg("Notification dropped after all retry attempts")
	return false
}

// TestChannels runs every channel's self-test
func (d *Dispatcher) TestChannels(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, len(d.channels))
	for _, ch := range d.channels {
		ok := ch.Test(ctx)
		d.logger.Info().Str("channel", ch.Name()).Bool("ok", ok).Msg("Channel test finished")
		results = append(results, TestResult{Channel: ch.Name(), OK: ok})
	}
	return results
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
