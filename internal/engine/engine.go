// Package engine schedules site monitors on a shared pool of check slots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/aleister1102/marketplace-monitor/internal/parser"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Exclusion records a configured site that could not be scheduled
type Exclusion struct {
	Site   string `json:"site"`
	Reason string `json:"reason"`
	// Err is a *common.ConfigurationError
	Err error `json:"-"`
	// Cause is the underlying validation or registry error
	Cause error `json:"-"`
}

// SiteStatus is the read-only view of one scheduled monitor
type SiteStatus struct {
	monitor.Status
	InFlight bool `json:"in_flight"`
}

// Engine owns the site monitors and drives their check cycles
type Engine struct {
	cfg       *config.AppConfig
	registry  *parser.Registry
	monitors  []*monitor.SiteMonitor
	byName    map[string]*monitor.SiteMonitor
	excluded  []Exclusion
	notifier  Notifier
	observers []Observer
	guard     AdmissionGuard
	cooldown  monitor.CooldownGate
	clock     func() time.Time
	tick      time.Duration
	grace     time.Duration
	logger    zerolog.Logger

	// slots is the counting semaphore shared by scheduled and single-shot checks
	slots chan struct{}
	wg    sync.WaitGroup

	checkCtx     context.Context
	cancelChecks context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]bool
	stats    models.MonitorStats
	running  bool
	stopped  bool
	stopCh   chan struct{}
	loopDone chan struct{}
}

// New builds monitors for every enabled site and seals the registry.
// Invalid sites and sites without a parser are excluded instead of failing the whole engine.
func New(cfg *config.AppConfig, registry *parser.Registry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, common.NewValidationError("config", nil, "configuration is required")
	}
	if registry == nil {
		return nil, common.NewValidationError("registry", nil, "parser registry is required")
	}

	slots := cfg.MaxConcurrentChecks
	if slots < 1 {
		slots = 1
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		byName:   make(map[string]*monitor.SiteMonitor),
		clock:    time.Now,
		tick:     cfg.Engine.Tick(),
		grace:    cfg.Engine.ShutdownGrace(),
		logger:   zerolog.Nop(),
		slots:    make(chan struct{}, slots),
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tick <= 0 {
		e.tick = time.Second
	}
	if e.grace <= 0 {
		e.grace = 30 * time.Second
	}
	e.logger = e.logger.With().Str("component", "Engine").Logger()
	e.checkCtx, e.cancelChecks = context.WithCancel(context.Background())

	registry.Seal()
	e.buildMonitors()
	e.stats.StartTime = e.clock()

	e.logger.Info().
		Int("sites", len(e.monitors)).
		Int("excluded", len(e.excluded)).
		Int("max_concurrent_checks", slots).
		Msg("Monitoring engine initialized")

	return e, nil
}

func (e *Engine) buildMonitors() {
	monitorOpts := []monitor.Option{
		monitor.WithClock(e.clock),
		monitor.WithLogger(e.logger),
	}
	if e.cooldown != nil {
		monitorOpts = append(monitorOpts, monitor.WithCooldown(e.cooldown))
	}

	for _, site := range e.cfg.Sites {
		if !site.IsEnabled() {
			e.logger.Debug().Str("site", site.Name).Msg("Skipping disabled site")
			continue
		}
		if _, dup := e.byName[site.Name]; dup {
			e.exclude(site.Name, common.NewConfigurationError(site.Name, "name", "duplicate site name"), nil)
			continue
		}
		if err := config.ValidateSite(site); err != nil {
			e.exclude(site.Name, err, err)
			continue
		}

		p, err := e.registry.ResolveFor(site)
		if err != nil {
			e.exclude(site.Name, common.NewConfigurationError(site.Name, "parser", err.Error()), err)
			continue
		}

		m := monitor.New(site, p, e.cfg, monitorOpts...)
		e.monitors = append(e.monitors, m)
		e.byName[site.Name] = m
	}

	sort.SliceStable(e.monitors, func(i, j int) bool {
		return e.monitors[i].Name() < e.monitors[j].Name()
	})
}

func (e *Engine) exclude(site string, err error, cause error) {
	var cfgErr *common.ConfigurationError
	if !errors.As(err, &cfgErr) {
		cfgErr = common.NewConfigurationError(site, "", err.Error())
	}
	e.excluded = append(e.excluded, Exclusion{
		Site:   site,
		Reason: cfgErr.Error(),
		Err:    cfgErr,
		Cause:  cause,
	})
	e.logger.Error().Err(cfgErr).Str("site", site).Msg("Site excluded from monitoring")
}

// Start launches the scheduling loop. It returns immediately; call Stop to shut down.
// Cancelling ctx cancels in-flight checks without waiting.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.loopDone = make(chan struct{})
	e.stats.StartTime = e.clock()

	go e.loop(ctx)

	e.logger.Info().Dur("tick", e.tick).Msg("Monitoring engine started")
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	e.schedulePass()
	for {
		select {
		case <-ticker.C:
			e.schedulePass()
		case <-e.stopCh:
			e.logger.Debug().Msg("Scheduling loop received stop signal")
			return
		case <-ctx.Done():
			e.logger.Info().Msg("Context cancelled, cancelling in-flight checks")
			e.cancelChecks()
			return
		}
	}
}

// schedulePass admits due monitors into free slots without blocking.
// Monitors that find no free slot stay due and are retried on the next pass.
func (e *Engine) schedulePass() {
	if e.guard != nil {
		if ok, reason := e.guard.Admit(); !ok {
			e.logger.Warn().Str("reason", reason).Msg("Admission guard vetoed scheduling pass")
			return
		}
	}

	now := e.clock()
	due := e.dueMonitors(now)

	for _, m := range due {
		select {
		case <-e.stopCh:
			return
		default:
		}

		select {
		case e.slots <- struct{}{}:
		default:
			e.logger.Debug().Int("waiting", len(due)).Msg("All check slots busy")
			return
		}

		if !e.markInFlight(m.Name()) {
			<-e.slots
			continue
		}

		e.wg.Add(1)
		go func(m *monitor.SiteMonitor) {
			defer e.wg.Done()
			e.execute(e.checkCtx, m)
		}(m)
	}
}

// dueMonitors returns the due monitors not in flight, ordered by next-due time then name
func (e *Engine) dueMonitors(now time.Time) []*monitor.SiteMonitor {
	e.mu.Lock()
	var due []*monitor.SiteMonitor
	for _, m := range e.monitors {
		if !e.inFlight[m.Name()] && m.IsDue(now) {
			due = append(due, m)
		}
	}
	e.mu.Unlock()

	nextDue := make(map[string]time.Time, len(due))
	for _, m := range due {
		nextDue[m.Name()] = m.NextDue()
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := nextDue[due[i].Name()], nextDue[due[j].Name()]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].Name() < due[j].Name()
	})
	return due
}

func (e *Engine) markInFlight(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[name] {
		return false
	}
	e.inFlight[name] = true
	return true
}

func (e *Engine) clearInFlight(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, name)
}

// execute runs one cycle in an already acquired slot, releases the slot, then dispatches events
func (e *Engine) execute(ctx context.Context, m *monitor.SiteMonitor) monitor.CheckResult {
	result := e.checkWithRecovery(ctx, m)
	<-e.slots
	e.clearInFlight(m.Name())

	if result.Cancelled {
		return result
	}

	e.record(result)
	e.dispatch(ctx, result)
	return result
}

func (e *Engine) checkWithRecovery(ctx context.Context, m *monitor.SiteMonitor) (result monitor.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during check: %v", r)
			e.logger.Error().
				Str("site", m.Name()).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in check cycle")

			m.RecordFailure(err)
			status := m.Status()
			result = monitor.CheckResult{
				RunID:               uuid.NewString(),
				Site:                m.Name(),
				Parser:              m.ParserID(),
				StartedAt:           status.LastCheck,
				Err:                 err,
				ConsecutiveFailures: status.ConsecutiveFailures,
				NextDue:             status.NextDue,
			}
		}
	}()
	return m.Check(ctx)
}

func (e *Engine) record(result monitor.CheckResult) {
	if errors.Is(result.Err, monitor.ErrCheckInProgress) {
		return
	}

	e.mu.Lock()
	e.stats.TotalChecks++
	if result.Success {
		e.stats.SuccessfulChecks++
	} else {
		e.stats.FailedChecks++
	}
	e.stats.SizesFound += len(result.Events)
	e.stats.LastCheckTime = result.StartedAt
	e.mu.Unlock()

	for _, o := range e.observers {
		o.OnCheck(result)
	}
}

func (e *Engine) dispatch(ctx context.Context, result monitor.CheckResult) {
	for _, event := range result.Events {
		e.logger.Info().
			Str("site", event.Site).
			Str("size", event.Size).
			Str("url", event.URL).
			Str("product", event.Product.DisplayName()).
			Msg("Size became available")

		delivered := false
		if e.notifier != nil {
			delivered = e.notifier.Notify(ctx, event)
		}
		if delivered {
			e.mu.Lock()
			e.stats.NotificationsSent++
			e.mu.Unlock()
		}
		for _, o := range e.observers {
			o.OnNotification(event, delivered)
		}
	}
}

// Check runs the named site, or every scheduled site when siteName is empty, ignoring due times.
// Checks still go through the shared slots. Results are ordered by site name.
func (e *Engine) Check(ctx context.Context, siteName string) ([]monitor.CheckResult, error) {
	targets, err := e.selectMonitors(siteName)
	if err != nil {
		return nil, err
	}

	// Stop waits on e.wg only after setting stopped, so Add must happen under the same lock
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, ErrStopped
	}
	e.wg.Add(len(targets))
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnShutdown := context.AfterFunc(e.checkCtx, cancel)
	defer stopOnShutdown()

	results := make([]monitor.CheckResult, len(targets))
	var wg sync.WaitGroup
	for i, m := range targets {
		wg.Add(1)
		go func(i int, m *monitor.SiteMonitor) {
			defer e.wg.Done()
			defer wg.Done()
			results[i] = e.checkNow(ctx, m)
		}(i, m)
	}
	wg.Wait()

	return results, nil
}

func (e *Engine) checkNow(ctx context.Context, m *monitor.SiteMonitor) monitor.CheckResult {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return monitor.CheckResult{Site: m.Name(), Parser: m.ParserID(), Cancelled: true, Err: ctx.Err()}
	}

	if !e.markInFlight(m.Name()) {
		<-e.slots
		return monitor.CheckResult{Site: m.Name(), Parser: m.ParserID(), Err: monitor.ErrCheckInProgress}
	}
	return e.execute(ctx, m)
}

func (e *Engine) selectMonitors(siteName string) ([]*monitor.SiteMonitor, error) {
	if siteName == "" {
		return e.monitors, nil
	}
	if m, ok := e.byName[siteName]; ok {
		return []*monitor.SiteMonitor{m}, nil
	}
	for _, ex := range e.excluded {
		if ex.Site == siteName {
			return nil, ex.Err
		}
	}
	if site, ok := e.cfg.FindSite(siteName); ok && !site.IsEnabled() {
		return nil, common.WrapErrorf(ErrSiteDisabled, "site '%s'", siteName)
	}
	return nil, common.WrapErrorf(ErrSiteNotFound, "site '%s'", siteName)
}

// Stop halts admission and waits for in-flight checks up to the shutdown grace period.
// When the grace period expires the checks are cancelled and ErrShutdownTimeout is returned.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	running := e.running
	close(e.stopCh)
	e.mu.Unlock()

	e.logger.Info().Msg("Stopping monitoring engine...")
	if running {
		<-e.loopDone
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.grace)
	defer timer.Stop()

	select {
	case <-done:
		e.cancelChecks()
		e.logger.Info().Msg("Monitoring engine stopped")
		return nil
	case <-timer.C:
		e.cancelChecks()
		e.logger.Warn().Dur("grace", e.grace).Msg("In-flight checks did not finish in time, cancelled")
		return ErrShutdownTimeout
	}
}

// Status returns a snapshot of every scheduled monitor, ordered by site name
func (e *Engine) Status() []SiteStatus {
	statuses := make([]SiteStatus, 0, len(e.monitors))
	for _, m := range e.monitors {
		statuses = append(statuses, SiteStatus{Status: m.Status()})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range statuses {
		statuses[i].InFlight = e.inFlight[statuses[i].Name]
	}
	return statuses
}

// Excluded returns the sites that were not scheduled and why
func (e *Engine) Excluded() []Exclusion {
	return append([]Exclusion(nil), e.excluded...)
}

// Stats returns the engine counters
func (e *Engine) Stats() models.MonitorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Sites returns the names of the scheduled sites in order
func (e *Engine) Sites() []string {
	names := make([]string, 0, len(e.monitors))
	for _, m := range e.monitors {
		names = append(names, m.Name())
	}
	return names
}
