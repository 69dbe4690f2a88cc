package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// AppendRunLog writes one ledger entry. Entries are never updated.
func (s *Store) AppendRunLog(ctx context.Context, e automation.RunLogEntry) (automation.RunLogEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var errText sql.NullString
	if e.ErrorText != "" {
		errText = sql.NullString{String: e.ErrorText, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_runs (id, automation_id, status, payload, error_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.AutomationID, string(e.Status), e.Payload, errText, toMillis(e.CreatedAt))
	if err != nil {
		return automation.RunLogEntry{}, fmt.Errorf("append run log for rule %s: %w", e.AutomationID, err)
	}
	return e, nil
}

// QueryRunLog returns a rule's entries created at or after since, newest first.
// A zero since returns the whole history.
func (s *Store) QueryRunLog(ctx context.Context, automationID string, since time.Time) ([]automation.RunLogEntry, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = toMillis(since)
	}
	return s.queryRuns(ctx, `
		SELECT id, automation_id, status, payload, error_text, created_at
		FROM automation_runs
		WHERE automation_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, automationID, sinceMs)
}

// ListRecentRuns returns the newest entries for a rule, capped at limit.
func (s *Store) ListRecentRuns(ctx context.Context, automationID string, limit int) ([]automation.RunLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(ctx, `
		SELECT id, automation_id, status, payload, error_text, created_at
		FROM automation_runs
		WHERE automation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, automationID, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]automation.RunLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run log: %w", err)
	}
	defer rows.Close()

	entries := []automation.RunLogEntry{}
	for rows.Next() {
		var e automation.RunLogEntry
		var status string
		var errText sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.AutomationID, &status, &e.Payload, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		e.Status = automation.RunStatus(status)
		e.ErrorText = errText.String
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return entries, nil
}
