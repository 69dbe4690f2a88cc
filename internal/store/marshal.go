package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// toMillis converts a timestamp to the INTEGER column encoding.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis converts a column value back into a UTC timestamp.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullableMillis encodes an optional timestamp; nil becomes SQL NULL.
func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// timePtr decodes an optional timestamp column.
func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalTrigger renders a rule's trigger for the trigger_config column.
func marshalTrigger(t automation.Trigger) (string, error) {
	if t == nil {
		return "{}", nil
	}
	data, err := automation.EncodeTrigger(t)
	if err != nil {
		return "", fmt.Errorf("marshal trigger: %w", err)
	}
	return string(data), nil
}

// marshalActions renders a rule's action list for the actions column.
func marshalActions(actions []automation.Action) (string, error) {
	data, err := automation.EncodeActions(actions)
	if err != nil {
		return "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(data), nil
}

// marshalConditions keeps the stored conditions verbatim, defaulting to [].
func marshalConditions(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}

// unmarshalRuleColumns fills the typed fields of a rule from its JSON columns.
// Rows are written by other clients too, so decode failures are kept on the
// rule (TriggerErr, ActionsErr) and the engine skips that rule only.
func unmarshalRuleColumns(r *automation.Rule, triggerType, triggerConfig, conditions, actions string) {
	r.Conditions = json.RawMessage(conditions)

	tt, err := automation.ParseTriggerType(triggerType)
	if err != nil {
		r.TriggerType = automation.TriggerType(triggerType)
		r.TriggerErr = &automation.MatchConfigError{RuleID: r.ID, Reason: "trigger type is invalid", Err: err}
	} else {
		r.TriggerType = tt
		trig, err := automation.DecodeTrigger([]byte(triggerConfig))
		if err != nil {
			r.TriggerErr = err
		} else {
			r.Trigger = trig
		}
	}

	acts, err := automation.DecodeActions([]byte(actions))
	if err != nil {
		r.ActionsErr = err
		return
	}
	r.Actions = acts
}
