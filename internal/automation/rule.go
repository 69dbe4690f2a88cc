package automation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule is a user-defined trigger/action binding scoped to one board.
//
// Trigger is nil when the stored configuration could not be decoded; the
// decode failure is kept in TriggerErr so the matcher can fail closed.
// Likewise ActionsErr holds an action list that could not be decoded.
type Rule struct {
	ID          string
	BoardID     string
	Name        string
	Enabled     bool
	TriggerType TriggerType
	Trigger     Trigger
	TriggerErr  error
	Conditions  json.RawMessage
	Actions     []Action
	ActionsErr  error
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RunStatus is the outcome of one rule invocation.
type RunStatus string

const (
	RunOK    RunStatus = "ok"
	RunError RunStatus = "error"
)

// RunLogEntry is one append-only ledger row.
type RunLogEntry struct {
	ID           string    `json:"id"`
	AutomationID string    `json:"automation_id"`
	Status       RunStatus `json:"status"`
	Payload      string    `json:"payload"`
	ErrorText    string    `json:"error_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchConfigError reports a trigger configuration the matcher cannot use.
type MatchConfigError struct {
	RuleID string
	Reason string
	Err    error
}

func (e *MatchConfigError) Error() string {
	msg := e.Reason
	if e.RuleID != "" {
		msg = fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MatchConfigError) Unwrap() error {
	return e.Err
}

// RuleView is the JSON shape of a rule served to API and CLI clients.
type RuleView struct {
	ID           string          `json:"id"`
	BoardID      string          `json:"board_id"`
	Name         string          `json:"name"`
	Enabled      bool            `json:"enabled"`
	TriggerType  TriggerType     `json:"trigger_type"`
	Trigger      json.RawMessage `json:"trigger,omitempty"`
	TriggerError string          `json:"trigger_error,omitempty"`
	Conditions   json.RawMessage `json:"conditions,omitempty"`
	Actions      json.RawMessage `json:"actions"`
	ActionsError string          `json:"actions_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// View renders r for clients. An undecodable trigger or action list is
// reported through TriggerError or ActionsError instead of failing the view.
func (r Rule) View() (RuleView, error) {
	v := RuleView{
		ID:          r.ID,
		BoardID:     r.BoardID,
		Name:        r.Name,
		Enabled:     r.Enabled,
		TriggerType: r.TriggerType,
		Conditions:  r.Conditions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	switch {
	case r.TriggerErr != nil:
		v.TriggerError = r.TriggerErr.Error()
	case r.Trigger != nil:
		raw, err := EncodeTrigger(r.Trigger)
		if err != nil {
			return RuleView{}, fmt.Errorf("view rule %s: %w", r.ID, err)
		}
		v.Trigger = raw
	}
	if r.ActionsErr != nil {
		v.ActionsError = r.ActionsErr.Error()
	}
	actions, err := EncodeActions(r.Actions)
	if err != nil {
		return RuleView{}, fmt.Errorf("view rule %s: %w", r.ID, err)
	}
	v.Actions = actions
	return v, nil
}
