package httpclient

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientBuilder(t *testing.T) {
	client, err := NewHTTPClientBuilder(zerolog.Nop()).
		WithTimeout(15 * time.Second).
		WithUserAgent("test-agent").
		WithFollowRedirects(false).
		WithInsecureSkipVerify(true).
		WithHTTP2(false).
		WithRetry(DefaultRetryHandlerConfig()).
		Build()

	require.NoError(t, err)
	cfg := client.Config()
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "test-agent", cfg.UserAgent)
	assert.False(t, cfg.FollowRedirects)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.False(t, cfg.EnableHTTP2)
	assert.NotNil(t, client.retryHandler)
}

func TestHTTPClientBuilder_DefaultValues(t *testing.T) {
	client, err := NewHTTPClientBuilder(zerolog.Nop()).Build()
	require.NoError(t, err)

	defaults := DefaultHTTPClientConfig()
	cfg := client.Config()
	assert.Equal(t, defaults.Timeout, cfg.Timeout)
	assert.Equal(t, defaults.FollowRedirects, cfg.FollowRedirects)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, DefaultMaxContentSize, cfg.MaxContentSize)
	assert.Nil(t, client.retryHandler)
}
