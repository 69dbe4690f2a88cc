package rulebook

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/store"
)

func TestLoad_ValidDirectory(t *testing.T) {
	result, errs := Load(filepath.Join("testdata", "valid"), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Rules, 3)

	byID := map[string]automation.Rule{}
	for _, r := range result.Rules {
		byID[r.ID] = r
	}

	done := byID["done-cleanup"]
	assert.Equal(t, "b1", done.BoardID)
	assert.Equal(t, "Tidy finished cards", done.Name)
	assert.True(t, done.Enabled)
	assert.Equal(t, automation.TriggerEvent, done.TriggerType)
	assert.Equal(t, automation.CardMovedTrigger{ToListID: "done"}, done.Trigger)
	assert.Equal(t, []automation.Action{
		automation.AddLabel{LabelID: "shipped"},
		automation.MoveToTop{},
		automation.Comment{Text: "Moved to done"},
	}, done.Actions)

	due := byID["due-soon"]
	assert.Equal(t, "due-soon", due.Name, "name defaults to the rule id")
	assert.Equal(t, automation.TriggerDue, due.TriggerType)
	assert.Equal(t, automation.DueWindowTrigger{Kind: automation.EventDueApproaching, Minutes: 1440}, due.Trigger)

	intake := byID["intake"]
	assert.False(t, intake.Enabled)
	assert.Equal(t, automation.CardCreatedTrigger{InListID: "inbox"}, intake.Trigger)
	assert.Equal(t, automation.ShiftDueByDays{Days: automation.Days(3)}, intake.Actions[1])
}

func TestLoad_InvalidEventCarriesPosition(t *testing.T) {
	_, errs := Load(filepath.Join("testdata", "invalid"), LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeTrigger, le.Code)
	assert.Contains(t, le.Message, "bad-event")
	assert.True(t, le.Pos.IsValid())
	assert.Contains(t, le.Error(), "bad.cue")
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, errs := Load(filepath.Join("testdata", "nope"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	_, errs := Load(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}

func TestLoadString_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing board",
			src: `rule: r: {
				trigger: {type: "event", event: "card.archived"}
				actions: []
			}`,
			want: "rule.r",
		},
		{
			name: "unknown action type",
			src: `rule: r: {
				board: "b1"
				trigger: {type: "event", event: "card.archived"}
				actions: [{type: "teleport"}]
			}`,
			want: "rule.r",
		},
		{
			name: "due rule without due event",
			src: `rule: r: {
				board: "b1"
				trigger: {type: "due", event: "card.moved"}
				actions: []
			}`,
			want: "due rules need",
		},
		{
			name: "negative minutes",
			src: `rule: r: {
				board: "b1"
				trigger: {type: "due", event: "due.past", minutes: -5}
				actions: []
			}`,
			want: "rule.r",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadString(tt.src, "inline.cue", LoadModeCollectAll)
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}

func TestLoadString_CollectAllKeepsGoodRules(t *testing.T) {
	src := `
		rule: good: {
			board: "b1"
			trigger: {type: "event", event: "comment.posted"}
			actions: [{type: "archive_now"}]
		}
		rule: bad: {
			board: "b1"
			trigger: {type: "event", event: "nope"}
			actions: []
		}
	`
	result, errs := LoadString(src, "mixed.cue", LoadModeCollectAll)
	require.Len(t, errs, 1)
	require.Len(t, result.Rules, 1)
	assert.Equal(t, "good", result.Rules[0].ID)
	assert.Equal(t, automation.KindTrigger{Kind: automation.EventCommentPosted}, result.Rules[0].Trigger)
}

func TestImport_UpsertsIntoStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.CreateBoard(ctx, automation.Board{ID: "b1", Name: "Board"})
	require.NoError(t, err)

	result, errs := Load(filepath.Join("testdata", "valid"), LoadModeFailFast)
	require.Empty(t, errs)

	n, err := Import(ctx, s, result.Rules)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Importing again updates in place.
	n, err = Import(ctx, s, result.Rules)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rules, err := s.ListRules(ctx, store.RuleFilter{BoardID: "b1"})
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	got, err := s.GetRule(ctx, "done-cleanup")
	require.NoError(t, err)
	assert.Equal(t, automation.CardMovedTrigger{ToListID: "done"}, got.Trigger)
}
