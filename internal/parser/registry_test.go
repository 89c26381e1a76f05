package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedParser struct {
	id     string
	accept bool
}

func (p namedParser) ID() string                       { return p.id }
func (p namedParser) CanHandle(config.SiteConfig) bool { return p.accept }
func (p namedParser) Parse(context.Context, string, []string, RequestOptions) (models.AvailabilitySnapshot, error) {
	return models.AvailabilitySnapshot{}, nil
}

func factoryFor(id string, accept bool) Factory {
	return func(Deps) Parser { return namedParser{id: id, accept: accept} }
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("shop", factoryFor("shop", false)))

	p, err := r.Resolve("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", p.ID())
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("shop", factoryFor("shop", false)))

	err := r.Register("shop", factoryFor("other", false))
	var dupErr *DuplicateParserError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "shop", dupErr.ID)

	require.NoError(t, r.Register("shop", factoryFor("replacement", false), WithOverwrite()))
	p, err := r.Resolve("shop")
	require.NoError(t, err)
	assert.Equal(t, "replacement", p.ID())
	assert.Equal(t, []string{"shop"}, r.IDs())
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, RegisterBuiltins(r))

	_, err := r.Resolve("unknown_parser")
	var unknownErr *UnknownParserError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "unknown_parser", unknownErr.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistry_Sealed(t *testing.T) {
	r := NewRegistry(Deps{})
	r.Seal()
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Register("late", factoryFor("late", true)), ErrRegistrySealed)
}

func TestRegistry_ResolveFor(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, RegisterBuiltins(r))
	require.NoError(t, r.Register("plugin", factoryFor("plugin", false)))

	tests := []struct {
		name     string
		site     config.SiteConfig
		expected string
	}{
		{
			name:     "explicit parser wins",
			site:     config.SiteConfig{Parser: "mango", URLs: []string{"https://www.nike.com/t/x"}},
			expected: MangoID,
		},
		{
			name:     "nike domain",
			site:     config.SiteConfig{URLs: []string{"https://www.nike.com/t/air-max"}},
			expected: NikeID,
		},
		{
			name:     "adidas country domain",
			site:     config.SiteConfig{URLs: []string{"https://www.adidas.de/samba"}},
			expected: AdidasID,
		},
		{
			name:     "mango shop subdomain",
			site:     config.SiteConfig{URLs: []string{"https://shop.mango.com/de/p/1"}},
			expected: MangoID,
		},
		{
			name:     "lookalike domain falls back",
			site:     config.SiteConfig{URLs: []string{"https://notnike.com/p/1"}},
			expected: GenericID,
		},
		{
			name:     "mixed domains fall back",
			site:     config.SiteConfig{URLs: []string{"https://www.nike.com/t/1", "https://shop.example/p/2"}},
			expected: GenericID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.ResolveFor(tt.site)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.ID())
		})
	}
}

func TestRegistry_FallbackConsultedLast(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("catch-all", factoryFor("catch-all", true), AsFallback()))
	require.NoError(t, r.Register("specific", factoryFor("specific", true)))

	p, err := r.ResolveFor(config.SiteConfig{Name: "x", URLs: []string{"https://x.example"}})
	require.NoError(t, err)
	assert.Equal(t, "specific", p.ID())
}

func TestRegistry_ResolveForNoMatch(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("picky", factoryFor("picky", false)))

	_, err := r.ResolveFor(config.SiteConfig{Name: "Shop", URLs: []string{"https://x.example"}})
	var unknownErr *UnknownParserError
	assert.True(t, errors.As(err, &unknownErr))
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, RegisterBuiltins(r))
	assert.Equal(t, []string{NikeID, AdidasID, MangoID, GenericID}, r.IDs())

	var dupErr *DuplicateParserError
	assert.True(t, errors.As(RegisterBuiltins(r), &dupErr))
}
