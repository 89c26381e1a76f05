package parser

import (
	"github.com/aleister1102/marketplace-monitor/internal/config"
)

type registration struct {
	id       string
	factory  Factory
	fallback bool
}

// Registry maps parser identifiers to factories.
//
// All registrations happen during a single-threaded bootstrap phase that ends with Seal.
// After Seal the registry is read-only and safe for concurrent use without locking.
type Registry struct {
	deps    Deps
	entries []registration
	index   map[string]int
	sealed  bool
}

// RegisterOption adjusts a single registration
type RegisterOption func(*registration, *registerSettings)

type registerSettings struct {
	overwrite bool
}

// WithOverwrite replaces an existing registration instead of failing
func WithOverwrite() RegisterOption {
	return func(_ *registration, s *registerSettings) { s.overwrite = true }
}

// AsFallback makes ResolveFor consult the parser only after every other parser declined
func AsFallback() RegisterOption {
	return func(r *registration, _ *registerSettings) { r.fallback = true }
}

// NewRegistry creates an empty registry whose factories receive deps
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:  deps,
		index: make(map[string]int),
	}
}

// Register adds a factory under id
func (r *Registry) Register(id string, factory Factory, opts ...RegisterOption) error {
	if r.sealed {
		return ErrRegistrySealed
	}

	entry := registration{id: id, factory: factory}
	var settings registerSettings
	for _, opt := range opts {
		opt(&entry, &settings)
	}

	if pos, exists := r.index[id]; exists {
		if !settings.overwrite {
			return &DuplicateParserError{ID: id}
		}
		r.entries[pos] = entry
		return nil
	}

	r.index[id] = len(r.entries)
	r.entries = append(r.entries, entry)
	return nil
}

// Seal ends the bootstrap phase
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Resolve builds the parser registered under id
func (r *Registry) Resolve(id string) (Parser, error) {
	pos, ok := r.index[id]
	if !ok {
		return nil, &UnknownParserError{ID: id}
	}
	return r.entries[pos].factory(r.deps), nil
}

// ResolveFor picks the parser for a site: the explicit parser field when set, otherwise the
// first registered parser whose CanHandle accepts the site, fallbacks last.
func (r *Registry) ResolveFor(site config.SiteConfig) (Parser, error) {
	if site.Parser != "" {
		return r.Resolve(site.Parser)
	}

	for _, pass := range []bool{false, true} {
		for _, entry := range r.entries {
			if entry.fallback != pass {
				continue
			}
			if p := entry.factory(r.deps); p.CanHandle(site) {
				return p, nil
			}
		}
	}
	return nil, &UnknownParserError{ID: "auto:" + site.Name}
}

// IDs lists the registered identifiers in registration order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		ids = append(ids, entry.id)
	}
	return ids
}

// RegisterBuiltins registers the nike, adidas, mango and generic parsers
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		id      string
		factory Factory
		opts    []RegisterOption
	}{
		{id: NikeID, factory: NewNikeParser},
		{id: AdidasID, factory: NewAdidasParser},
		{id: MangoID, factory: NewMangoParser},
		{id: GenericID, factory: NewGenericParser, opts: []RegisterOption{AsFallback()}},
	}

	for _, b := range builtins {
		if err := r.Register(b.id, b.factory, b.opts...); err != nil {
			return err
		}
	}
	return nil
}
