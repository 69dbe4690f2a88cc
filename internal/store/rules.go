package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// RuleFilter narrows ListRules. Zero values mean "any".
type RuleFilter struct {
	BoardID     string
	TriggerType automation.TriggerType
	EnabledOnly bool
}

// SaveRule inserts a rule or replaces every mutable column of an existing one.
// created_at is preserved across updates.
func (s *Store) SaveRule(ctx context.Context, r automation.Rule) (automation.Rule, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	trig, err := marshalTrigger(r.Trigger)
	if err != nil {
		return automation.Rule{}, err
	}
	acts, err := marshalActions(r.Actions)
	if err != nil {
		return automation.Rule{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automations
		(id, board_id, name, enabled, trigger_type, trigger_config, conditions, actions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			board_id = excluded.board_id,
			name = excluded.name,
			enabled = excluded.enabled,
			trigger_type = excluded.trigger_type,
			trigger_config = excluded.trigger_config,
			conditions = excluded.conditions,
			actions = excluded.actions,
			updated_at = excluded.updated_at
	`,
		r.ID, r.BoardID, r.Name, boolToInt(r.Enabled), string(r.TriggerType),
		trig, marshalConditions(r.Conditions), acts,
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if err != nil {
		return automation.Rule{}, fmt.Errorf("save rule %s: %w", r.ID, err)
	}
	return r, nil
}

const ruleColumns = `id, board_id, name, enabled, trigger_type, trigger_config, conditions, actions, created_at, updated_at`

func scanRule(row rowScanner) (automation.Rule, error) {
	var r automation.Rule
	var enabled int
	var triggerType, triggerConfig, conditions, actions string
	var created, updated int64
	if err := row.Scan(&r.ID, &r.BoardID, &r.Name, &enabled, &triggerType, &triggerConfig, &conditions, &actions, &created, &updated); err != nil {
		return automation.Rule{}, err
	}
	r.Enabled = enabled != 0
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	unmarshalRuleColumns(&r, triggerType, triggerConfig, conditions, actions)
	return r, nil
}

// GetRule reads one rule. Returns ErrNotFound if it does not exist.
func (s *Store) GetRule(ctx context.Context, ruleID string) (automation.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automations WHERE id = ?`, ruleID)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.Rule{}, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return automation.Rule{}, fmt.Errorf("get rule %s: %w", ruleID, err)
	}
	return r, nil
}

// ListRules returns rules matching the filter in creation order.
func (s *Store) ListRules(ctx context.Context, f RuleFilter) ([]automation.Rule, error) {
	var where []string
	var args []any
	if f.BoardID != "" {
		where = append(where, "board_id = ?")
		args = append(args, f.BoardID)
	}
	if f.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(f.TriggerType))
	}
	if f.EnabledOnly {
		where = append(where, "enabled = 1")
	}

	query := `SELECT ` + ruleColumns + ` FROM automations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []automation.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// SetRuleEnabled flips a rule's enabled flag and bumps updated_at.
func (s *Store) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automations SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), toMillis(time.Now()), ruleID,
	)
	if err != nil {
		return fmt.Errorf("set rule %s enabled: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule %s enabled: rows affected: %w", ruleID, err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule. Its run ledger entries are kept.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete rule %s: %w", ruleID, err)
	}
	return nil
}
