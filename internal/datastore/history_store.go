// Package datastore persists check and notification history in SQLite and exports it to Parquet.
package datastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// CheckRecord is one stored check cycle
type CheckRecord struct {
	ID                  int64
	RunID               string
	Site                string
	Parser              string
	StartedAt           time.Time
	Duration            time.Duration
	Success             bool
	Error               string
	Events              int
	ConsecutiveFailures int
	AvailableSizes      []string
	Snapshots           []models.AvailabilitySnapshot
}

// NotificationRecord is one stored notification attempt
type NotificationRecord struct {
	ID        int64
	Site      string
	URL       string
	Size      string
	Product   string
	Price     string
	Delivered bool
	SentAt    time.Time
}

// HistoryStore wraps the SQLite connection holding check_history and notifications
type HistoryStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewHistoryStore opens the database, creating the parent directory and schema when missing
func NewHistoryStore(dataSourceName string, logger zerolog.Logger) (*HistoryStore, error) {
	logger = logger.With().Str("component", "HistoryStore").Logger()
	logger.Info().Str("db_path", dataSourceName).Msg("Initializing history database connection")

	dbDir := filepath.Dir(dataSourceName)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error().Err(err).Str("directory", dbDir).Msg("Failed to create history database directory")
		return nil, fmt.Errorf("failed to create history database directory %s: %w", dbDir, err)
	}

	dbInstance, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		logger.Error().Err(err).Str("db_path", dataSourceName).Msg("Failed to open history database")
		return nil, fmt.Errorf("sql.Open failed for %s: %w", dataSourceName, err)
	}
	// observers write from several check goroutines
	dbInstance.SetMaxOpenConns(1)

	store := &HistoryStore{
		db:     dbInstance,
		logger: logger,
		now:    time.Now,
	}

	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info().Str("path", dataSourceName).Msg("History database initialized and schema verified")
	return store, nil
}

// Close closes the database connection
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the history tables if they don't already exist
func (s *HistoryStore) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS check_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT UNIQUE NOT NULL,
		site TEXT NOT NULL,
		parser TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error TEXT,
		events INTEGER NOT NULL DEFAULT 0,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		available_sizes TEXT,
		snapshots TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_check_history_site_started ON check_history (site, started_at);
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		url TEXT NOT NULL,
		size TEXT NOT NULL,
		product TEXT,
		price TEXT,
		delivered INTEGER NOT NULL,
		sent_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		s.logger.Error().Err(err).Msg("Failed to initialize history schema")
		return err
	}
	s.logger.Debug().Msg("History schema ensured (check_history, notifications)")
	return nil
}

// RecordCheck stores one completed check cycle
func (s *HistoryStore) RecordCheck(result monitor.CheckResult) error {
	sizes, err := json.Marshal(availableSizes(result.Snapshots))
	if err != nil {
		return common.WrapError(err, "failed to encode available sizes")
	}
	snapshots, err := json.Marshal(result.Snapshots)
	if err != nil {
		return common.WrapError(err, "failed to encode snapshots")
	}

	query := `INSERT INTO check_history (run_id, site, parser, started_at, duration_ms, success, error, events, consecutive_failures, available_sizes, snapshots)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query,
		result.RunID,
		result.Site,
		result.Parser,
		result.StartedAt.UnixMilli(),
		result.Duration.Milliseconds(),
		result.Success,
		sql.NullString{String: result.Error(), Valid: result.Err != nil},
		len(result.Events),
		result.ConsecutiveFailures,
		string(sizes),
		string(snapshots),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("site", result.Site).Str("run_id", result.RunID).Msg("Failed to record check")
		return fmt.Errorf("failed to insert check record for site '%s': %w", result.Site, err)
	}
	return nil
}

// RecordNotification stores one notification attempt
func (s *HistoryStore) RecordNotification(event models.ChangeEvent, delivered bool) error {
	query := `INSERT INTO notifications (site, url, size, product, price, delivered, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		event.Site,
		event.URL,
		event.Size,
		event.Product.DisplayName(),
		event.Product.DisplayPrice(),
		delivered,
		s.now().UnixMilli(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("site", event.Site).Str("size", event.Size).Msg("Failed to record notification")
		return fmt.Errorf("failed to insert notification record for site '%s': %w", event.Site, err)
	}
	return nil
}

// OnCheck records the cycle; storage errors are logged and never reach the engine
func (s *HistoryStore) OnCheck(result monitor.CheckResult) {
	_ = s.RecordCheck(result)
}

// OnNotification records the delivery outcome
func (s *HistoryStore) OnNotification(event models.ChangeEvent, delivered bool) {
	_ = s.RecordNotification(event, delivered)
}

const checkColumns = `id, run_id, site, parser, started_at, duration_ms, success, error, events, consecutive_failures, available_sizes, snapshots`

// LastCheck returns the most recent stored check of a site, or an error wrapping common.ErrNotFound
func (s *HistoryStore) LastCheck(site string) (*CheckRecord, error) {
	query := `SELECT ` + checkColumns + ` FROM check_history WHERE site = ? ORDER BY started_at DESC, id DESC LIMIT 1`
	record, err := scanCheck(s.db.QueryRow(query, site))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.WrapErrorf(common.ErrNotFound, "no check history for site '%s'", site)
		}
		s.logger.Error().Err(err).Str("site", site).Msg("Failed to query last check")
		return nil, fmt.Errorf("failed to query last check for site '%s': %w", site, err)
	}
	return record, nil
}

// Since returns every check started at or after t, oldest first
func (s *HistoryStore) Since(t time.Time) ([]CheckRecord, error) {
	query := `SELECT ` + checkColumns + ` FROM check_history WHERE started_at >= ? ORDER BY started_at ASC, id ASC`
	rows, err := s.db.Query(query, t.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query check history: %w", err)
	}
	defer rows.Close()

	var records []CheckRecord
	for rows.Next() {
		record, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check history: %w", err)
	}
	return records, nil
}

// Notifications returns every notification attempt at or after t, oldest first
func (s *HistoryStore) Notifications(since time.Time) ([]NotificationRecord, error) {
	query := `SELECT id, site, url, size, product, price, delivered, sent_at FROM notifications WHERE sent_at >= ? ORDER BY sent_at ASC, id ASC`
	rows, err := s.db.Query(query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []NotificationRecord
	for rows.Next() {
		var (
			r              NotificationRecord
			product, price sql.NullString
			sentAt         int64
		)
		if err := rows.Scan(&r.ID, &r.Site, &r.URL, &r.Size, &product, &price, &r.Delivered, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		r.Product = product.String
		r.Price = price.String
		r.SentAt = time.UnixMilli(sentAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheck(row rowScanner) (*CheckRecord, error) {
	var r CheckRecord
	var startedAt, durationMs int64
	var errText, sizes, snapshots sql.NullString
	if err := row.Scan(&r.ID, &r.RunID, &r.Site, &r.Parser, &startedAt, &durationMs, &r.Success,
		&errText, &r.Events, &r.ConsecutiveFailures, &sizes, &snapshots); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(startedAt).UTC()
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.Error = errText.String

	if sizes.Valid && sizes.String != "" {
		if err := json.Unmarshal([]byte(sizes.String), &r.AvailableSizes); err != nil {
			return nil, common.WrapErrorf(err, "failed to decode available sizes of run '%s'", r.RunID)
		}
	}
	if snapshots.Valid && snapshots.String != "" {
		if err := json.Unmarshal([]byte(snapshots.String), &r.Snapshots); err != nil {
			return nil, common.WrapErrorf(err, "failed to decode snapshots of run '%s'", r.RunID)
		}
	}
	return &r, nil
}

// availableSizes returns the sorted, de-duplicated in-stock sizes across successful snapshots
func availableSizes(snapshots []models.AvailabilitySnapshot) []string {
	seen := make(map[string]bool)
	sizes := []string{}
	for _, snap := range snapshots {
		for _, size := range snap.AvailableSizes() {
			if !seen[size] {
				seen[size] = true
				sizes = append(sizes, size)
			}
		}
	}
	sort.Strings(sizes)
	return sizes
}
