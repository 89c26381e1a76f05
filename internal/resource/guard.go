package resource

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryGuard refuses new check admissions while system memory use is above a percentage
type MemoryGuard struct {
	maxPercent float64
	read       UsageReader
	logger     zerolog.Logger

	mu        sync.Mutex
	last      Usage
	vetoed    bool
	vetoCount int
}

// GuardOption configures a MemoryGuard
type GuardOption func(*MemoryGuard)

// WithUsageReader replaces the gopsutil sampler
func WithUsageReader(read UsageReader) GuardOption {
	return func(g *MemoryGuard) {
		g.read = read
	}
}

// NewMemoryGuard creates a guard vetoing admission above maxPercent of system memory
func NewMemoryGuard(maxPercent float64, logger zerolog.Logger, opts ...GuardOption) *MemoryGuard {
	g := &MemoryGuard{
		maxPercent: maxPercent,
		read:       ReadUsage,
		logger:     logger.With().Str("component", "MemoryGuard").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit reports whether a scheduling pass may admit new checks.
// A failed sample admits, so a broken sampler never halts monitoring.
func (g *MemoryGuard) Admit() (bool, string) {
	usage, err := g.read()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to sample memory usage, admitting checks")
		return true, ""
	}
	g.last = usage

	if g.maxPercent <= 0 || usage.SystemMemUsedPercent <= g.maxPercent {
		if g.vetoed {
			g.logger.Info().
				Float64("used_percent", usage.SystemMemUsedPercent).
				Msg("System memory usage back under threshold, resuming admissions")
		}
		g.vetoed = false
		return true, ""
	}

	g.vetoCount++
	if !g.vetoed {
		g.logger.Warn().
			Float64("used_percent", usage.SystemMemUsedPercent).
			Float64("threshold_percent", g.maxPercent).
			Int64("used_mb", usage.SystemMemUsedMB).
			Int64("total_mb", usage.SystemMemTotalMB).
			Msg("System memory usage exceeded threshold, pausing admissions")
	}
	g.vetoed = true
	return false, fmt.Sprintf("system memory at %.1f%% exceeds %.1f%%", usage.SystemMemUsedPercent, g.maxPercent)
}

// LastUsage returns the most recent successful sample
func (g *MemoryGuard) LastUsage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Vetoes returns how many passes the guard has refused
func (g *MemoryGuard) Vetoes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vetoCount
}
