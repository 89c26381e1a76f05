// Package monitor tracks the availability state of one configured site across check cycles.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/normalizer"
	"github.com/aleister1102/marketplace-monitor/internal/parser"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCheckInProgress is returned when Check is called while a cycle is already running
var ErrCheckInProgress = errors.New("check already in progress")

// CooldownGate decides whether a newly available size may be notified again
type CooldownGate interface {
	Allow(ctx context.Context, site, size string, now time.Time) (bool, error)
}

// CheckResult is the outcome of one check cycle
type CheckResult struct {
	RunID               string                        `json:"run_id"`
	Site                string                        `json:"site"`
	Parser              string                        `json:"parser"`
	StartedAt           time.Time                     `json:"started_at"`
	Duration            time.Duration                 `json:"duration"`
	Success             bool                          `json:"success"`
	Cancelled           bool                          `json:"cancelled,omitempty"`
	Err                 error                         `json:"-"`
	Snapshots           []models.AvailabilitySnapshot `json:"snapshots"`
	Events              []models.ChangeEvent          `json:"events"`
	ConsecutiveFailures int                           `json:"consecutive_failures"`
	NextDue             time.Time                     `json:"next_due"`
}

// Error returns the cycle error message, or "" for a successful cycle
func (r CheckResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// AvailableCount returns how many target sizes were in stock across all URLs
func (r CheckResult) AvailableCount() int {
	count := 0
	for _, snap := range r.Snapshots {
		count += len(snap.AvailableSizes())
	}
	return count
}

// Option customizes a SiteMonitor
type Option func(*SiteMonitor)

// WithClock replaces time.Now, mostly for tests
func WithClock(clock func() time.Time) Option {
	return func(m *SiteMonitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithCooldown enables the re-notify cooldown gate
func WithCooldown(gate CooldownGate) Option {
	return func(m *SiteMonitor) {
		m.cooldown = gate
	}
}

// WithLogger sets the parent logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *SiteMonitor) {
		m.logger = logger
	}
}

type targetSize struct {
	raw        string
	normalized string
}

// SiteMonitor runs check cycles for one site and owns its SiteState
type SiteMonitor struct {
	site          config.SiteConfig
	parser        parser.Parser
	request       parser.RequestOptions
	targets       []targetSize
	sizeArgs      []string
	baseInterval  time.Duration
	retryAttempts int
	cooldown      CooldownGate
	clock         func() time.Time
	logger        zerolog.Logger

	mu    sync.RWMutex
	state SiteState
}

// New creates an idle monitor for site, checked with p
func New(site config.SiteConfig, p parser.Parser, global *config.AppConfig, opts ...Option) *SiteMonitor {
	if global == nil {
		global = config.NewDefaultAppConfig()
	}

	m := &SiteMonitor{
		site:   site,
		parser: p,
		request: parser.RequestOptions{
			Timeout:   global.TimeoutDuration(),
			UserAgent: global.UserAgent,
			Headers:   site.Headers,
			Cookies:   site.Cookies,
		},
		baseInterval:  site.Interval(global.GlobalCheckInterval),
		retryAttempts: global.RetryAttempts,
		clock:         time.Now,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().
		Str("component", "SiteMonitor").
		Str("site", site.Name).
		Str("parser", p.ID()).
		Logger()

	urls, dropped := normalizer.DedupeURLs(site.URLs)
	if len(dropped) > 0 {
		m.logger.Warn().Strs("urls", dropped).Msg("Ignoring duplicate product URLs")
	}
	m.site.URLs = urls

	normalize := parser.NormalizerFor(p)
	seen := make(map[string]bool)
	for _, size := range site.Sizes {
		n := normalize(size)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		m.targets = append(m.targets, targetSize{raw: size, normalized: n})
		m.sizeArgs = append(m.sizeArgs, size)
	}

	m.state = newSiteState(m.baseInterval)
	return m
}

// Name returns the site name
func (m *SiteMonitor) Name() string {
	return m.site.Name
}

// ParserID returns the id of the parser checking this site
func (m *SiteMonitor) ParserID() string {
	return m.parser.ID()
}

// Site returns the site configuration
func (m *SiteMonitor) Site() config.SiteConfig {
	return m.site
}

// IsDue reports whether a check should run at now
func (m *SiteMonitor) IsDue(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.State == StateChecking {
		return false
	}
	if m.state.LastCheck.IsZero() {
		return true
	}
	return !now.Before(m.state.NextDue())
}

// NextDue returns the next scheduled check time, zero when never checked
func (m *SiteMonitor) NextDue() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.NextDue()
}

// Check runs one cycle over every URL of the site and diffs the snapshots against the notified set.
// A cycle interrupted by ctx is discarded and leaves the state untouched.
func (m *SiteMonitor) Check(ctx context.Context) CheckResult {
	start := m.clock()
	result := CheckResult{
		RunID:     uuid.NewString(),
		Site:      m.site.Name,
		Parser:    m.parser.ID(),
		StartedAt: start,
	}

	m.mu.Lock()
	if m.state.State == StateChecking {
		m.mu.Unlock()
		result.Err = ErrCheckInProgress
		return result
	}
	previous := m.state.State
	m.state.State = StateChecking
	m.mu.Unlock()

	m.logger.Debug().Int("urls", len(m.site.URLs)).Msg("Starting check cycle")

	snapshots := make([]models.AvailabilitySnapshot, 0, len(m.site.URLs))
	for _, url := range m.site.URLs {
		if ctx.Err() != nil {
			break
		}
		snapshots = append(snapshots, m.checkURL(ctx, url))
	}

	if err := ctx.Err(); err != nil {
		m.mu.Lock()
		m.state.State = previous
		result.NextDue = m.state.NextDue()
		result.ConsecutiveFailures = m.state.ConsecutiveFailures
		m.mu.Unlock()

		m.logger.Info().Err(err).Msg("Check cycle cancelled, discarding partial results")
		result.Cancelled = true
		result.Err = err
		result.Duration = m.clock().Sub(start)
		return result
	}

	result.Snapshots = snapshots
	result.Success = anySuccess(snapshots)
	if !result.Success {
		result.Err = cycleError(snapshots)
	}

	// The cooldown gate may block or fail, so it is consulted without holding m.mu
	m.mu.RLock()
	pending := m.pendingLocked(snapshots)
	m.mu.RUnlock()
	approved := m.approve(ctx, pending, start)

	m.mu.Lock()
	m.state.LastCheck = start
	for _, snap := range snapshots {
		m.state.LastSnapshots[snap.URL] = snap
	}
	result.Events = m.diffLocked(snapshots, approved, start)
	if result.Success {
		m.recordSuccessLocked(start)
	} else {
		m.recordFailureLocked(result.Err)
	}
	result.ConsecutiveFailures = m.state.ConsecutiveFailures
	result.NextDue = m.state.NextDue()
	state := m.state.State
	m.mu.Unlock()

	result.Duration = m.clock().Sub(start)

	event := m.logger.Info()
	if !result.Success {
		event = m.logger.Warn().Err(result.Err)
	}
	event.
		Bool("success", result.Success).
		Int("events", len(result.Events)).
		Int("consecutive_failures", result.ConsecutiveFailures).
		Str("state", state.String()).
		Time("next_due", result.NextDue).
		Msg("Check cycle finished")

	return result
}

func (m *SiteMonitor) checkURL(ctx context.Context, url string) models.AvailabilitySnapshot {
	snap, err := m.parser.Parse(ctx, url, m.sizeArgs, m.request)
	if err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("Failed to fetch product page")
		return models.NewFailedSnapshot(url, m.clock(), err.Error())
	}

	snap = snap.Sanitize()
	snap.URL = url
	if snap.Timestamp.IsZero() {
		snap.Timestamp = m.clock()
	}
	if !snap.Success {
		m.logger.Warn().Str("url", url).Str("reason", snap.Error).Msg("Product page not recognized")
	}
	return snap
}

// pendingLocked lists the available pairs not yet notified, in diff order
func (m *SiteMonitor) pendingLocked(snapshots []models.AvailabilitySnapshot) []notifiedPair {
	var pending []notifiedPair
	for _, target := range m.targets {
		for _, snap := range snapshots {
			key := notifiedPair{size: target.normalized, url: snap.URL}
			if !snap.Success || !snap.Sizes[target.normalized] {
				continue
			}
			if _, done := m.state.notified[key]; !done {
				pending = append(pending, key)
			}
		}
	}
	return pending
}

// approve asks the cooldown gate about each pending pair. Gate errors fail open.
func (m *SiteMonitor) approve(ctx context.Context, pending []notifiedPair, now time.Time) map[notifiedPair]bool {
	approved := make(map[notifiedPair]bool, len(pending))
	for _, key := range pending {
		if m.cooldown == nil {
			approved[key] = true
			continue
		}
		ok, err := m.cooldown.Allow(ctx, m.site.Name, key.size, now)
		if err != nil {
			m.logger.Warn().Err(err).Str("size", key.size).Msg("Cooldown check failed, notifying anyway")
			ok = true
		}
		approved[key] = ok
	}
	return approved
}

// diffLocked walks sizes in config order, then URLs in config order
func (m *SiteMonitor) diffLocked(snapshots []models.AvailabilitySnapshot, approved map[notifiedPair]bool, now time.Time) []models.ChangeEvent {
	var events []models.ChangeEvent
	for _, target := range m.targets {
		for _, snap := range snapshots {
			key := notifiedPair{size: target.normalized, url: snap.URL}

			if !snap.Success || !snap.Sizes[target.normalized] {
				delete(m.state.notified, key)
				continue
			}
			if _, done := m.state.notified[key]; done {
				continue
			}
			if !approved[key] {
				m.logger.Debug().Str("size", target.raw).Str("url", snap.URL).Msg("Notification suppressed by cooldown")
				continue
			}

			m.state.notified[key] = struct{}{}
			events = append(events, models.ChangeEvent{
				Site:           m.site.Name,
				URL:            snap.URL,
				Size:           target.raw,
				NormalizedSize: target.normalized,
				Timestamp:      now,
				Parser:         m.parser.ID(),
				Product:        snap.Product,
			})
		}
	}
	return events
}

// RecordFailure counts an unexpected error or panic as a failed cycle
func (m *SiteMonitor) RecordFailure(err error) {
	if err == nil {
		err = errors.New("check failed without error")
	}
	now := m.clock()

	m.mu.Lock()
	m.state.LastCheck = now
	m.recordFailureLocked(err)
	failures := m.state.ConsecutiveFailures
	m.mu.Unlock()

	m.logger.Error().Err(err).Int("consecutive_failures", failures).Msg("Check cycle failed")
}

func (m *SiteMonitor) recordSuccessLocked(now time.Time) {
	m.state.State = StateIdle
	m.state.LastSuccess = now
	m.state.LastError = ""
	m.state.ConsecutiveFailures = 0
	m.state.CurrentInterval = m.baseInterval
}

func (m *SiteMonitor) recordFailureLocked(err error) {
	m.state.ConsecutiveFailures++
	m.state.LastError = err.Error()
	if m.state.ConsecutiveFailures >= m.retryAttempts {
		m.state.State = StateBackoff
		m.state.CurrentInterval = backoffInterval(m.baseInterval, m.state.ConsecutiveFailures)
		return
	}
	m.state.State = StateIdle
	m.state.CurrentInterval = m.baseInterval
}

// Status returns a copy of the monitor state
func (m *SiteMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Name:                m.site.Name,
		Parser:              m.parser.ID(),
		State:               m.state.State,
		URLs:                append([]string(nil), m.site.URLs...),
		Sizes:               append([]string(nil), m.site.Sizes...),
		LastCheck:           m.state.LastCheck,
		LastSuccess:         m.state.LastSuccess,
		LastError:           m.state.LastError,
		ConsecutiveFailures: m.state.ConsecutiveFailures,
		NominalInterval:     m.baseInterval,
		CurrentInterval:     m.state.CurrentInterval,
		NextDue:             m.state.NextDue(),
		NotifiedPairs:       len(m.state.notified),
	}
	for _, url := range m.site.URLs {
		if snap, ok := m.state.LastSnapshots[url]; ok {
			status.Snapshots = append(status.Snapshots, snap)
		}
	}
	return status
}

func anySuccess(snapshots []models.AvailabilitySnapshot) bool {
	for _, snap := range snapshots {
		if snap.Success {
			return true
		}
	}
	return false
}

func cycleError(snapshots []models.AvailabilitySnapshot) error {
	if len(snapshots) == 0 {
		return common.NewError("no URLs configured")
	}
	if len(snapshots) == 1 {
		return errors.New(snapshots[0].Error)
	}
	reasons := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		reasons = append(reasons, fmt.Sprintf("%s: %s", snap.URL, snap.Error))
	}
	return fmt.Errorf("all %d URLs failed: %s", len(snapshots), strings.Join(reasons, "; "))
}
