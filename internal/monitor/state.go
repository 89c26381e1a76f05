package monitor

import (
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// State is the scheduling state of a site monitor
type State int

const (
	// StateIdle waits for the next due time
	StateIdle State = iota
	// StateChecking is running a check cycle
	StateChecking
	// StateBackoff waits out an inflated interval after repeated failures
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON status output
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// maxBackoffExponent caps the interval multiplier at 2^5
const maxBackoffExponent = 5

type notifiedPair struct {
	size string // normalized
	url  string
}

// SiteState is the mutable state owned by one SiteMonitor
type SiteState struct {
	State               State
	LastSnapshots       map[string]models.AvailabilitySnapshot
	LastCheck           time.Time
	LastSuccess         time.Time
	LastError           string
	ConsecutiveFailures int
	CurrentInterval     time.Duration

	notified map[notifiedPair]struct{}
}

func newSiteState(interval time.Duration) SiteState {
	return SiteState{
		State:           StateIdle,
		LastSnapshots:   make(map[string]models.AvailabilitySnapshot),
		CurrentInterval: interval,
		notified:        make(map[notifiedPair]struct{}),
	}
}

// NextDue is the zero time before the first check, meaning due immediately
func (s SiteState) NextDue() time.Time {
	if s.LastCheck.IsZero() {
		return time.Time{}
	}
	return s.LastCheck.Add(s.CurrentInterval)
}

// backoffInterval returns base × 2^min(failures, 5)
func backoffInterval(base time.Duration, failures int) time.Duration {
	exp := failures
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	if exp < 0 {
		exp = 0
	}
	return base * time.Duration(1<<uint(exp))
}

// Status is a read-only copy of a monitor's state
type Status struct {
	Name                string                        `json:"name"`
	Parser              string                        `json:"parser"`
	State               State                         `json:"state"`
	URLs                []string                      `json:"urls"`
	Sizes               []string                      `json:"sizes"`
	LastCheck           time.Time                     `json:"last_check,omitempty"`
	LastSuccess         time.Time                     `json:"last_success,omitempty"`
	LastError           string                        `json:"last_error,omitempty"`
	ConsecutiveFailures int                           `json:"consecutive_failures"`
	NominalInterval     time.Duration                 `json:"nominal_interval"`
	CurrentInterval     time.Duration                 `json:"current_interval"`
	NextDue             time.Time                     `json:"next_due"`
	NotifiedPairs       int                           `json:"notified_pairs"`
	Snapshots           []models.AvailabilitySnapshot `json:"snapshots,omitempty"`
}
