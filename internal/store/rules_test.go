package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoboard/internal/automation"
)

func testRule(id, boardID string) automation.Rule {
	return automation.Rule{
		ID:          id,
		BoardID:     boardID,
		Name:        "Done cleanup",
		Enabled:     true,
		TriggerType: automation.TriggerEvent,
		Trigger:     automation.CardMovedTrigger{ToListID: "done"},
		Actions: []automation.Action{
			automation.AddLabel{LabelID: "urgent"},
			automation.ShiftDueByDays{Days: automation.Days(2)},
			automation.CreateChecklist{Title: "QA", Items: []string{"a", "b"}},
		},
	}
}

func TestSaveRule_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	_, err := s.SaveRule(ctx, testRule("r1", f.board.ID))
	require.NoError(t, err)

	got, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Done cleanup", got.Name)
	assert.True(t, got.Enabled)
	assert.Equal(t, automation.TriggerEvent, got.TriggerType)
	assert.Equal(t, automation.CardMovedTrigger{ToListID: "done"}, got.Trigger)
	assert.NoError(t, got.TriggerErr)
	assert.Equal(t, testRule("r1", f.board.ID).Actions, got.Actions)
	assert.JSONEq(t, `[]`, string(got.Conditions))
}

func TestSaveRule_UpdatePreservesCreatedAt(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	r := testRule("r1", f.board.ID)
	r.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.SaveRule(ctx, r)
	require.NoError(t, err)

	r.Name = "Renamed"
	r.CreatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	r.UpdatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.SaveRule(ctx, r)
	require.NoError(t, err)

	got, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 2026, got.CreatedAt.Year())
	assert.Equal(t, time.February, got.UpdatedAt.Month())
}

func TestGetRule_MalformedTriggerKeptOnRule(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)

	_, err := s.db.Exec(`
		INSERT INTO automations (id, board_id, name, enabled, trigger_type, trigger_config, created_at, updated_at)
		VALUES ('bad', ?, 'broken', 1, 'event', 'not json', 0, 0)
	`, f.board.ID)
	require.NoError(t, err)

	got, err := s.GetRule(context.Background(), "bad")
	require.NoError(t, err)
	assert.Nil(t, got.Trigger)
	var mce *automation.MatchConfigError
	assert.ErrorAs(t, got.TriggerErr, &mce)
}

func TestListRules_MalformedRowsKeptOnRule(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	_, err := s.SaveRule(ctx, testRule("good", f.board.ID))
	require.NoError(t, err)
	_, err = s.db.Exec(`
		INSERT INTO automations (id, board_id, name, enabled, trigger_type, trigger_config, actions, created_at, updated_at)
		VALUES ('bad-actions', ?, 'broken actions', 1, 'event', '{"event":"card.archived"}', '[{"type":"shift_due_by_days","days":"3"}]', 0, 0),
		       ('bad-type', ?, 'broken type', 1, 'webhook', '{"event":"card.archived"}', '[]', 0, 0)
	`, f.board.ID, f.board.ID)
	require.NoError(t, err)

	rules, err := s.ListRules(ctx, RuleFilter{BoardID: f.board.ID})
	require.NoError(t, err)
	byID := make(map[string]automation.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	require.Len(t, byID, 3)

	assert.NoError(t, byID["good"].ActionsErr)
	assert.NoError(t, byID["good"].TriggerErr)

	badActions := byID["bad-actions"]
	assert.Error(t, badActions.ActionsErr)
	assert.Nil(t, badActions.Actions)
	assert.NotNil(t, badActions.Trigger)

	badType := byID["bad-type"]
	assert.Equal(t, automation.TriggerType("webhook"), badType.TriggerType)
	assert.Nil(t, badType.Trigger)
	var mce *automation.MatchConfigError
	assert.ErrorAs(t, badType.TriggerErr, &mce)
}

func TestListRules_Filter(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	other, err := s.CreateBoard(ctx, automation.Board{ID: "b2", Name: "Other"})
	require.NoError(t, err)

	r1 := testRule("r1", f.board.ID)
	r2 := testRule("r2", f.board.ID)
	r2.Enabled = false
	r3 := testRule("r3", f.board.ID)
	r3.TriggerType = automation.TriggerDue
	r3.Trigger = automation.DueWindowTrigger{Kind: automation.EventDueApproaching, Minutes: 60}
	r4 := testRule("r4", other.ID)
	for _, r := range []automation.Rule{r1, r2, r3, r4} {
		_, err := s.SaveRule(ctx, r)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter RuleFilter
		want   []string
	}{
		{"board", RuleFilter{BoardID: f.board.ID}, []string{"r1", "r2", "r3"}},
		{"enabled event", RuleFilter{BoardID: f.board.ID, TriggerType: automation.TriggerEvent, EnabledOnly: true}, []string{"r1"}},
		{"due across boards", RuleFilter{TriggerType: automation.TriggerDue}, []string{"r3"}},
		{"all", RuleFilter{}, []string{"r1", "r2", "r3", "r4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := s.ListRules(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(rules))
			for _, r := range rules {
				ids = append(ids, r.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestSetRuleEnabled(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	_, err := s.SaveRule(ctx, testRule("r1", f.board.ID))
	require.NoError(t, err)

	require.NoError(t, s.SetRuleEnabled(ctx, "r1", false))
	got, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	assert.ErrorIs(t, s.SetRuleEnabled(ctx, "missing", true), ErrNotFound)
}

func TestSaveRule_ConditionsStoredVerbatim(t *testing.T) {
	s := createTestStore(t)
	f := seedBoard(t, s)
	ctx := context.Background()

	r := testRule("r1", f.board.ID)
	r.Conditions = json.RawMessage(`[{"field":"title","op":"contains","value":"bug"}]`)
	_, err := s.SaveRule(ctx, r)
	require.NoError(t, err)

	got, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, string(r.Conditions), string(got.Conditions))
}
