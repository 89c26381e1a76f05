package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/rs/zerolog"
)

// RetryHandlerConfig selects which statuses are retried and how long to wait
type RetryHandlerConfig struct {
	MaxRetries       int           `json:"max_retries"`
	BaseDelay        time.Duration `json:"base_delay"`
	MaxDelay         time.Duration `json:"max_delay"`
	EnableJitter     bool          `json:"enable_jitter"`
	RetryStatusCodes []int         `json:"retry_status_codes"`
}

// DefaultRetryHandlerConfig retries 429 and gateway errors twice.
// Transport failures are left to the monitor's own backoff.
func DefaultRetryHandlerConfig() RetryHandlerConfig {
	return RetryHandlerConfig{
		MaxRetries:   2,
		BaseDelay:    time.Second,
		MaxDelay:     10 * time.Second,
		EnableJitter: true,
		RetryStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// RetryHandler repeats requests answered with a throttling or gateway status.
// A Retry-After header takes precedence over the exponential delay.
type RetryHandler struct {
	cfg       RetryHandlerConfig
	retryable map[int]bool
	now       func() time.Time
	logger    zerolog.Logger
}

func NewRetryHandler(config RetryHandlerConfig, logger zerolog.Logger) *RetryHandler {
	retryable := make(map[int]bool, len(config.RetryStatusCodes))
	for _, code := range config.RetryStatusCodes {
		retryable[code] = true
	}
	return &RetryHandler{
		cfg:       config,
		retryable: retryable,
		now:       time.Now,
		logger:    logger.With().Str("component", "RetryHandler").Logger(),
	}
}

// ShouldRetry is false once attempt reaches MaxRetries
func (rh *RetryHandler) ShouldRetry(statusCode int, attempt int) bool {
	return attempt < rh.cfg.MaxRetries && rh.retryable[statusCode]
}

// CalculateDelay is BaseDelay doubled per attempt, capped at MaxDelay, plus up to 10% jitter
func (rh *RetryHandler) CalculateDelay(attempt int) time.Duration {
	delay := rh.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if rh.cfg.MaxDelay > 0 && delay >= rh.cfg.MaxDelay {
			delay = rh.cfg.MaxDelay
			break
		}
	}

	if rh.cfg.EnableJitter {
		if spread := int64(delay / 10); spread > 0 {
			delay += time.Duration(rand.Int63n(spread))
		}
	}
	return delay
}

// retryAfter reads a Retry-After header given in seconds or as an HTTP date
func (rh *RetryHandler) retryAfter(resp *HTTPResponse) (time.Duration, bool) {
	value := strings.TrimSpace(resp.Headers["Retry-After"])
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(rh.now()); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func (rh *RetryHandler) delayFor(attempt int, resp *HTTPResponse) time.Duration {
	if d, ok := rh.retryAfter(resp); ok {
		if rh.cfg.MaxDelay > 0 && d > rh.cfg.MaxDelay {
			return rh.cfg.MaxDelay
		}
		return d
	}
	return rh.CalculateDelay(attempt)
}

// DoWithRetry runs doFunc until the status is not retryable or retries run out.
// Transport errors are returned at once.
func (rh *RetryHandler) DoWithRetry(ctx context.Context, doFunc func(*HTTPRequest) (*HTTPResponse, error), req *HTTPRequest) (*HTTPResponse, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := doFunc(req)
		if err != nil {
			return nil, err
		}
		if !rh.retryable[resp.StatusCode] {
			return resp, nil
		}
		if !rh.ShouldRetry(resp.StatusCode, attempt) {
			httpErr := common.NewHTTPErrorWithURL(resp.StatusCode, http.StatusText(resp.StatusCode), req.URL)
			return resp, common.WrapError(httpErr, "all retry attempts failed")
		}

		delay := rh.delayFor(attempt, resp)
		rh.logger.Warn().
			Str("url", req.URL).
			Int("status_code", resp.StatusCode).
			Int("attempt", attempt+1).
			Int("max_retries", rh.cfg.MaxRetries).
			Dur("delay", delay).
			Msg("Throttled, waiting before retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
