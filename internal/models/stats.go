package models

import "time"

// MonitorStats aggregates counters over the lifetime of an engine run
type MonitorStats struct {
	TotalChecks       int       `json:"total_checks"`
	SuccessfulChecks  int       `json:"successful_checks"`
	FailedChecks      int       `json:"failed_checks"`
	SizesFound        int       `json:"sizes_found"`
	NotificationsSent int       `json:"notifications_sent"`
	StartTime         time.Time `json:"start_time"`
	LastCheckTime     time.Time `json:"last_check_time,omitempty"`
}

// Uptime returns the time elapsed since StartTime
func (s MonitorStats) Uptime(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return now.Sub(s.StartTime)
}

// SuccessRate returns successful checks as a percentage of all checks
func (s MonitorStats) SuccessRate() float64 {
	if s.TotalChecks == 0 {
		return 0
	}
	return float64(s.SuccessfulChecks) / float64(s.TotalChecks) * 100
}
