package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	urlA = "https://shop.example/p/a"
	urlB = "https://shop.example/p/b"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type parseResult struct {
	sizes map[string]bool
	err   error
	fail  string
}

// scriptedParser returns the configured result per URL on every call
type scriptedParser struct {
	mu      sync.Mutex
	results map[string]parseResult
	calls   int
	hook    func(url string)
}

func newScriptedParser() *scriptedParser {
	return &scriptedParser{results: make(map[string]parseResult)}
}

func (p *scriptedParser) set(url string, r parseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[url] = r
}

func (p *scriptedParser) ID() string                       { return "scripted" }
func (p *scriptedParser) CanHandle(config.SiteConfig) bool { return true }

func (p *scriptedParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedParser) Parse(ctx context.Context, url string, _ []string, _ parser.RequestOptions) (models.AvailabilitySnapshot, error) {
	p.mu.Lock()
	p.calls++
	r := p.results[url]
	hook := p.hook
	p.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if r.err != nil {
		return models.AvailabilitySnapshot{}, r.err
	}
	if r.fail != "" {
		return models.NewFailedSnapshot(url, time.Time{}, r.fail), nil
	}
	return models.NewSnapshot(url, time.Time{}, r.sizes), nil
}

func testSite(urls ...string) config.SiteConfig {
	return config.SiteConfig{
		Name:          "Shop",
		URLs:          urls,
		Sizes:         []string{"US 9", "US 10"},
		CheckInterval: 120,
	}
}

func newTestMonitor(t *testing.T, p parser.Parser, site config.SiteConfig, clock *fakeClock, opts ...Option) *SiteMonitor {
	t.Helper()
	global := config.NewDefaultAppConfig()
	global.RetryAttempts = 3
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(site, p, global, opts...)
}

func eventKeys(events []models.ChangeEvent) []string {
	var keys []string
	for _, e := range events {
		keys = append(keys, e.NormalizedSize+"@"+e.URL)
	}
	return keys
}

func TestNew_IdleAndDueImmediately(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(t, newScriptedParser(), testSite(urlA), clock)

	status := m.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.True(t, status.LastCheck.IsZero())
	assert.True(t, m.NextDue().IsZero())
	assert.True(t, m.IsDue(clock.Now()))
	assert.Equal(t, 2*time.Minute, status.NominalInterval)
}

func TestIsDue_AfterInterval(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": false, "10": false}})
	m := newTestMonitor(t, p, testSite(urlA), clock)

	m.Check(context.Background())
	assert.False(t, m.IsDue(clock.Now()))
	assert.Equal(t, clock.Now().Add(2*time.Minute), m.NextDue())

	clock.Advance(119 * time.Second)
	assert.False(t, m.IsDue(clock.Now()))

	clock.Advance(time.Second)
	assert.True(t, m.IsDue(clock.Now()))
}

func TestCheck_SingleEventForNewlyAvailableSize(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": false, "10": true}})
	m := newTestMonitor(t, p, testSite(urlA), clock)

	first := m.Check(context.Background())
	require.True(t, first.Success)
	require.Len(t, first.Events, 1)
	event := first.Events[0]
	assert.Equal(t, "Shop", event.Site)
	assert.Equal(t, urlA, event.URL)
	assert.Equal(t, "US 10", event.Size)
	assert.Equal(t, "10", event.NormalizedSize)
	assert.Equal(t, "scripted", event.Parser)
	assert.Equal(t, clock.Now(), event.Timestamp)
	assert.NotEmpty(t, first.RunID)

	clock.Advance(2 * time.Minute)
	second := m.Check(context.Background())
	assert.True(t, second.Success)
	assert.Empty(t, second.Events)
}

func TestCheck_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	m := newTestMonitor(t, p, testSite(urlA), clock)

	steps := []struct {
		name       string
		sizes      map[string]bool
		wantEvents int
		wantPairs  int
	}{
		{name: "becomes available", sizes: map[string]bool{"9": true}, wantEvents: 1, wantPairs: 1},
		{name: "still available", sizes: map[string]bool{"9": true}, wantEvents: 0, wantPairs: 1},
		{name: "sold out", sizes: map[string]bool{"9": false}, wantEvents: 0, wantPairs: 0},
		{name: "available again", sizes: map[string]bool{"9": true}, wantEvents: 1, wantPairs: 1},
	}

	for _, step := range steps {
		p.set(urlA, parseResult{sizes: step.sizes})
		result := m.Check(context.Background())
		assert.Len(t, result.Events, step.wantEvents, step.name)
		assert.Equal(t, step.wantPairs, m.Status().NotifiedPairs, step.name)
		clock.Advance(2 * time.Minute)
	}
}

func TestCheck_NeverRepeatsWithoutUnavailableTransition(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true, "10": true}})
	p.set(urlB, parseResult{sizes: map[string]bool{"9": true}})
	m := newTestMonitor(t, p, testSite(urlA, urlB), clock)

	seen := make(map[string]int)
	for i := 0; i < 5; i++ {
		for _, key := range eventKeys(m.Check(context.Background()).Events) {
			seen[key]++
		}
		clock.Advance(2 * time.Minute)
	}

	assert.Equal(t, map[string]int{"9@" + urlA: 1, "10@" + urlA: 1, "9@" + urlB: 1}, seen)
}

func TestCheck_EventOrderIsSizeThenURL(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true, "10": true}})
	p.set(urlB, parseResult{sizes: map[string]bool{"9": true, "10": true}})
	m := newTestMonitor(t, p, testSite(urlA, urlB), clock)

	result := m.Check(context.Background())
	assert.Equal(t, []string{"9@" + urlA, "9@" + urlB, "10@" + urlA, "10@" + urlB}, eventKeys(result.Events))
}

func TestCheck_FailedURLClearsItsPairs(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	p.set(urlB, parseResult{sizes: map[string]bool{"9": true}})
	m := newTestMonitor(t, p, testSite(urlA, urlB), clock)

	require.Len(t, m.Check(context.Background()).Events, 2)

	p.set(urlB, parseResult{err: parser.NewTransportError(urlB, 503, errors.New("unavailable"))})
	clock.Advance(2 * time.Minute)
	partial := m.Check(context.Background())
	assert.True(t, partial.Success, "one URL succeeding keeps the cycle successful")
	assert.Empty(t, partial.Events)
	assert.Equal(t, 1, m.Status().NotifiedPairs)

	p.set(urlB, parseResult{sizes: map[string]bool{"9": true}})
	clock.Advance(2 * time.Minute)
	recovered := m.Check(context.Background())
	assert.Equal(t, []string{"9@" + urlB}, eventKeys(recovered.Events))
}

func TestCheck_TransportErrorBecomesFailedSnapshot(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{err: parser.NewTransportError(urlA, 0, errors.New("connection refused"))})
	m := newTestMonitor(t, p, testSite(urlA), clock)

	result := m.Check(context.Background())
	require.Len(t, result.Snapshots, 1)
	snap := result.Snapshots[0]
	assert.False(t, snap.Success)
	assert.Empty(t, snap.Sizes)
	assert.Contains(t, snap.Error, "connection refused")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error(), "connection refused")
	assert.Equal(t, 1, m.Status().ConsecutiveFailures)
}

func TestCheck_StructureFailureCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{fail: "no size information found on page"})
	m := newTestMonitor(t, p, testSite(urlA), clock)

	result := m.Check(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "no size information found on page", m.Status().LastError)
	assert.Equal(t, clock.Now(), result.Snapshots[0].Timestamp)
}

func TestCheck_BackoffAfterRetryAttempts(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{err: parser.NewTransportError(urlA, 0, errors.New("timeout"))})
	m := newTestMonitor(t, p, testSite(urlA), clock)
	base := 2 * time.Minute

	tests := []struct {
		failures     int
		wantState    State
		wantInterval time.Duration
	}{
		{failures: 1, wantState: StateIdle, wantInterval: base},
		{failures: 2, wantState: StateIdle, wantInterval: base},
		{failures: 3, wantState: StateBackoff, wantInterval: base * 8},
		{failures: 4, wantState: StateBackoff, wantInterval: base * 16},
		{failures: 5, wantState: StateBackoff, wantInterval: base * 32},
		{failures: 6, wantState: StateBackoff, wantInterval: base * 32},
	}

	for _, tt := range tests {
		result := m.Check(context.Background())
		status := m.Status()
		assert.Equal(t, tt.failures, result.ConsecutiveFailures)
		assert.Equal(t, tt.wantState, status.State, "after %d failures", tt.failures)
		assert.Equal(t, tt.wantInterval, status.CurrentInterval, "after %d failures", tt.failures)
		clock.Advance(status.CurrentInterval)
	}

	p.set(urlA, parseResult{sizes: map[string]bool{"9": false}})
	result := m.Check(context.Background())
	status := m.Status()
	assert.True(t, result.Success)
	assert.Zero(t, status.ConsecutiveFailures)
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, base, status.CurrentInterval)
	assert.Empty(t, status.LastError)
	assert.Equal(t, clock.Now(), status.LastSuccess)
}

func TestCheck_ThreeTransportFailuresDelayNextDue(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{err: parser.NewTransportError(urlA, 0, errors.New("dns failure"))})
	m := newTestMonitor(t, p, testSite(urlA), clock)
	interval := 2 * time.Minute

	for i := 0; i < 3; i++ {
		m.Check(context.Background())
		clock.Advance(interval)
	}

	status := m.Status()
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.False(t, status.NextDue.Before(status.LastCheck.Add(2*interval)))
}

func TestCheck_CancelledCycleIsDiscarded(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	p.set(urlB, parseResult{sizes: map[string]bool{"9": true}})
	m := newTestMonitor(t, p, testSite(urlA, urlB), clock)

	ctx, cancel := context.WithCancel(context.Background())
	p.hook = func(url string) {
		if url == urlA {
			cancel()
		}
	}

	result := m.Check(ctx)
	assert.True(t, result.Cancelled)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, result.Events)
	assert.Empty(t, result.Snapshots)

	status := m.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.True(t, status.LastCheck.IsZero())
	assert.Zero(t, status.ConsecutiveFailures)
	assert.Zero(t, status.NotifiedPairs)
	assert.True(t, m.IsDue(clock.Now()))
}

func TestCheck_RejectsConcurrentCycle(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	m := newTestMonitor(t, p, testSite(urlA), clock)

	entered := make(chan struct{})
	release := make(chan struct{})
	p.hook = func(string) {
		close(entered)
		<-release
	}

	done := make(chan CheckResult)
	go func() { done <- m.Check(context.Background()) }()
	<-entered

	assert.Equal(t, StateChecking, m.Status().State)
	assert.False(t, m.IsDue(clock.Now()))
	assert.ErrorIs(t, m.Check(context.Background()).Err, ErrCheckInProgress)

	close(release)
	assert.True(t, (<-done).Success)
	assert.Equal(t, 1, p.callCount())
}

func TestRecordFailure(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(t, newScriptedParser(), testSite(urlA), clock)

	for i := 0; i < 3; i++ {
		m.RecordFailure(errors.New("panic: boom"))
	}

	status := m.Status()
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.Equal(t, StateBackoff, status.State)
	assert.Equal(t, "panic: boom", status.LastError)
	assert.Equal(t, clock.Now(), status.LastCheck)
	assert.Equal(t, 16*time.Minute, status.CurrentInterval)
}

type recordingGate struct {
	mu      sync.Mutex
	allow   bool
	err     error
	queries []string
}

func (g *recordingGate) Allow(_ context.Context, site, size string, _ time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, site+"/"+size)
	return g.allow, g.err
}

func TestCheck_CooldownGate(t *testing.T) {
	tests := []struct {
		name       string
		gate       *recordingGate
		wantEvents int
		wantPairs  int
	}{
		{name: "allowed", gate: &recordingGate{allow: true}, wantEvents: 1, wantPairs: 1},
		{name: "suppressed", gate: &recordingGate{allow: false}, wantEvents: 0, wantPairs: 0},
		{name: "store error fails open", gate: &recordingGate{err: errors.New("redis down")}, wantEvents: 1, wantPairs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			p := newScriptedParser()
			p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
			m := newTestMonitor(t, p, testSite(urlA), clock, WithCooldown(tt.gate))

			result := m.Check(context.Background())
			assert.Len(t, result.Events, tt.wantEvents)
			assert.Equal(t, tt.wantPairs, m.Status().NotifiedPairs)
			assert.Equal(t, []string{"Shop/9"}, tt.gate.queries)
		})
	}
}

func TestCheck_SuppressedPairIsReevaluated(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	gate := &recordingGate{allow: false}
	m := newTestMonitor(t, p, testSite(urlA), clock, WithCooldown(gate))

	assert.Empty(t, m.Check(context.Background()).Events)

	gate.allow = true
	clock.Advance(2 * time.Minute)
	assert.Len(t, m.Check(context.Background()).Events, 1)
	assert.Len(t, gate.queries, 2)
}

func TestNew_DeduplicatesNormalizedTargets(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	site := testSite(urlA)
	site.Sizes = []string{"US 9", "9", "us 9"}
	m := newTestMonitor(t, p, site, clock)

	result := m.Check(context.Background())
	require.Len(t, result.Events, 1)
	assert.Equal(t, "US 9", result.Events[0].Size)
}

func TestStatus_SnapshotsInURLOrder(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	p.set(urlB, parseResult{fail: "layout changed"})
	m := newTestMonitor(t, p, testSite(urlA, urlB), clock)

	result := m.Check(context.Background())
	assert.Equal(t, 1, result.AvailableCount())

	status := m.Status()
	require.Len(t, status.Snapshots, 2)
	assert.Equal(t, urlA, status.Snapshots[0].URL)
	assert.Equal(t, urlB, status.Snapshots[1].URL)
	assert.Equal(t, "scripted", status.Parser)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "checking", StateChecking.String())
	assert.Equal(t, "backoff", StateBackoff.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNew_DeduplicatesProductURLs(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	m := newTestMonitor(t, p, testSite(urlA, "https://SHOP.example/p/a#sizes"), clock)

	result := m.Check(context.Background())
	assert.Equal(t, 1, p.callCount())
	require.Len(t, result.Events, 1)
	assert.Equal(t, []string{urlA}, m.Status().URLs)
}

// statusReadingGate reads the monitor while it decides, as a slow store would let Status run
type statusReadingGate struct {
	m      *SiteMonitor
	states []State
}

func (g *statusReadingGate) Allow(context.Context, string, string, time.Time) (bool, error) {
	g.states = append(g.states, g.m.Status().State)
	return true, nil
}

func TestCheck_CooldownGateRunsWithoutStateLock(t *testing.T) {
	clock := newFakeClock()
	p := newScriptedParser()
	p.set(urlA, parseResult{sizes: map[string]bool{"9": true}})
	gate := &statusReadingGate{}
	m := newTestMonitor(t, p, testSite(urlA), clock, WithCooldown(gate))
	gate.m = m

	done := make(chan CheckResult, 1)
	go func() { done <- m.Check(context.Background()) }()

	select {
	case result := <-done:
		assert.Len(t, result.Events, 1)
		assert.Equal(t, []State{StateChecking}, gate.states)
	case <-time.After(2 * time.Second):
		t.Fatal("Check blocked while the cooldown gate read Status")
	}
}
