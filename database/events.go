package database

import (
	"fmt"
	"strings"
	"time"

	"gorged/models"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	timestampLayout   = "2006-01-02 15:04:05.000000"
)

// RecordInterceptEvents stores the outcomes of one response in a single transaction.
func RecordInterceptEvents(events []models.InterceptEvent) error {
	if len(events) == 0 {
		return nil
	}
	if DB == nil {
		return errNoDB
	}
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning intercept event transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO intercept_events (response_id, timestamp, url, interceptor_id, outcome, error, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing intercept event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.Exec(e.ResponseID, ts.UTC().Format(timestampLayout), e.URL, e.InterceptorID, e.Outcome, e.Error, e.DurationMicros); err != nil {
			return fmt.Errorf("inserting intercept event for %s: %w", e.InterceptorID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing intercept events: %w", err)
	}
	return nil
}

// GetRecentInterceptEvents lists events newest first.
func GetRecentInterceptEvents(filters models.InterceptEventFilters) ([]models.InterceptEvent, error) {
	if DB == nil {
		return nil, errNoDB
	}
	var where []string
	var args []interface{}
	if filters.InterceptorID != "" {
		where = append(where, "interceptor_id = ?")
		args = append(args, filters.InterceptorID)
	}
	if filters.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, filters.Outcome)
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT id, response_id, timestamp, url, interceptor_id, outcome, error, duration_us FROM intercept_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying intercept events: %w", err)
	}
	defer rows.Close()

	events := []models.InterceptEvent{}
	for rows.Next() {
		var e models.InterceptEvent
		if err := rows.Scan(&e.ID, &e.ResponseID, &e.Timestamp, &e.URL, &e.InterceptorID, &e.Outcome, &e.Error, &e.DurationMicros); err != nil {
			return nil, fmt.Errorf("scanning intercept event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating intercept event rows: %w", err)
	}
	return events, nil
}

// PurgeInterceptEvents deletes events recorded before the cutoff and returns
// how many were removed.
func PurgeInterceptEvents(before time.Time) (int64, error) {
	if DB == nil {
		return 0, errNoDB
	}
	res, err := DB.Exec("DELETE FROM intercept_events WHERE timestamp < ?", before.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("purging intercept events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting purged row count: %w", err)
	}
	return n, nil
}

// EventSink records pipeline outcomes in the intercept_events table.
type EventSink struct{}

func (EventSink) RecordInterceptEvents(events []models.InterceptEvent) error {
	return RecordInterceptEvents(events)
}
