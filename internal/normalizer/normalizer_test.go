package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already canonical", input: "https://shop.example/p/1", want: "https://shop.example/p/1"},
		{name: "mixed case host and scheme", input: "HTTPS://Shop.Example/P/1", want: "https://shop.example/P/1"},
		{name: "fragment removed", input: "https://shop.example/p/1#reviews", want: "https://shop.example/p/1"},
		{name: "default https port", input: "https://shop.example:443/p/1", want: "https://shop.example/p/1"},
		{name: "default http port", input: "http://shop.example:80/p/1", want: "http://shop.example/p/1"},
		{name: "custom port kept", input: "http://shop.example:8080/p/1", want: "http://shop.example:8080/p/1"},
		{name: "missing scheme", input: "shop.example/p/1", want: "https://shop.example/p/1"},
		{name: "empty path", input: "https://shop.example", want: "https://shop.example/"},
		{name: "query kept", input: "https://shop.example/p?color=red#x", want: "https://shop.example/p?color=red"},
		{name: "whitespace trimmed", input: "  https://shop.example/p  ", want: "https://shop.example/p"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "no host", input: "https:///p/1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_Empty(t *testing.T) {
	_, err := NormalizeURL("")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestDedupeURLs(t *testing.T) {
	kept, dropped := DedupeURLs([]string{
		"https://shop.example/p/1",
		"https://SHOP.example/p/1#sizes",
		"https://shop.example/p/2",
		"https://shop.example:443/p/1",
	})

	assert.Equal(t, []string{"https://shop.example/p/1", "https://shop.example/p/2"}, kept)
	assert.Equal(t, []string{"https://SHOP.example/p/1#sizes", "https://shop.example:443/p/1"}, dropped)
}

func TestDedupeURLs_NoDuplicates(t *testing.T) {
	kept, dropped := DedupeURLs([]string{"https://a.example/p", "https://b.example/p"})

	assert.Len(t, kept, 2)
	assert.Empty(t, dropped)
}
