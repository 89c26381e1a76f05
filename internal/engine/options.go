package engine

import (
	"context"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/rs/zerolog"
)

// Notifier delivers change events. *notifier.Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, event models.ChangeEvent) bool
}

// Observer is told about every finished cycle and every notification attempt
type Observer interface {
	OnCheck(result monitor.CheckResult)
	OnNotification(event models.ChangeEvent, delivered bool)
}

// AdmissionGuard can veto a whole scheduling pass, e.g. under memory pressure
type AdmissionGuard interface {
	Admit() (bool, string)
}

// Option customizes an Engine
type Option func(*Engine)

// WithNotifier sets the event sink
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver adds an observer. Observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithAdmissionGuard sets the pass-level admission guard
func WithAdmissionGuard(g AdmissionGuard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithCooldown enables the re-notify cooldown for every monitor
func WithCooldown(gate monitor.CooldownGate) Option {
	return func(e *Engine) { e.cooldown = gate }
}

// WithClock replaces time.Now for due-time computation
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithTick overrides engine.tick_seconds
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithShutdownGrace overrides engine.shutdown_grace_seconds
func WithShutdownGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithLogger sets the parent logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}
