package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
)

func ruleIDs(rules []automation.Rule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestMatch_CardMovedDiscriminators(t *testing.T) {
	ev := automation.NewEvent(automation.EventCardMoved, "b1", "c1", automation.WithMove("todo", "done"))

	tests := []struct {
		name  string
		trig  automation.CardMovedTrigger
		match bool
	}{
		{"wildcard", automation.CardMovedTrigger{}, true},
		{"to matches", automation.CardMovedTrigger{ToListID: "done"}, true},
		{"to differs", automation.CardMovedTrigger{ToListID: "todo"}, false},
		{"from matches", automation.CardMovedTrigger{FromListID: "todo"}, true},
		{"from differs", automation.CardMovedTrigger{FromListID: "done"}, false},
		{"both match", automation.CardMovedTrigger{FromListID: "todo", ToListID: "done"}, true},
		{"one of two differs", automation.CardMovedTrigger{FromListID: "todo", ToListID: "archive"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match([]automation.Rule{rule("r", tt.trig)}, ev, zap.NewNop())
			assert.Equal(t, tt.match, len(got) == 1)
		})
	}
}

func TestMatch_CardCreatedInList(t *testing.T) {
	ev := automation.NewEvent(automation.EventCardCreated, "b1", "c1", automation.WithList("todo"))

	rules := []automation.Rule{
		rule("any", automation.CardCreatedTrigger{}),
		rule("todo", automation.CardCreatedTrigger{InListID: "todo"}),
		rule("done", automation.CardCreatedTrigger{InListID: "done"}),
	}
	assert.Equal(t, []string{"any", "todo"}, ruleIDs(Match(rules, ev, nil)))
}

func TestMatch_LabelAddedIgnoresLabelID(t *testing.T) {
	ev := automation.NewEvent(automation.EventLabelAdded, "b1", "c1", automation.WithExtra("label_id", "green"))

	rules := []automation.Rule{rule("r", automation.LabelAddedTrigger{LabelID: "red"})}
	assert.Equal(t, []string{"r"}, ruleIDs(Match(rules, ev, nil)))
}

func TestMatch_KindOnly(t *testing.T) {
	ev := automation.NewEvent(automation.EventCommentPosted, "b1", "c1")

	rules := []automation.Rule{
		rule("comment", automation.KindTrigger{Kind: automation.EventCommentPosted}),
		rule("archive", automation.KindTrigger{Kind: automation.EventCardArchived}),
	}
	assert.Equal(t, []string{"comment"}, ruleIDs(Match(rules, ev, nil)))
}

func TestMatch_ExcludesDisabledAndNonEventRules(t *testing.T) {
	ev := automation.NewEvent(automation.EventDueApproaching, "b1", "c1")
	trig := automation.DueWindowTrigger{Kind: automation.EventDueApproaching, Minutes: 60}

	disabled := rule("disabled", trig)
	disabled.Enabled = false
	due := rule("due", trig)
	due.TriggerType = automation.TriggerDue
	schedule := rule("schedule", trig)
	schedule.TriggerType = automation.TriggerSchedule
	event := rule("event", trig)

	got := Match([]automation.Rule{disabled, due, schedule, event}, ev, nil)
	assert.Equal(t, []string{"event"}, ruleIDs(got))
}

func TestMatch_MalformedTriggerFailsClosed(t *testing.T) {
	ev := automation.NewEvent(automation.EventCardArchived, "b1", "c1")

	broken := rule("broken", nil)
	broken.TriggerErr = &MatchConfigError{RuleID: "broken", Reason: "trigger config is not an object"}
	missing := rule("missing", nil)

	rules := []automation.Rule{
		rule("first", automation.KindTrigger{Kind: automation.EventCardArchived}),
		broken,
		missing,
		rule("last", automation.KindTrigger{Kind: automation.EventCardArchived}),
	}
	assert.Equal(t, []string{"first", "last"}, ruleIDs(Match(rules, ev, nil)))
}

func TestMatch_UndecodableActionsSkipped(t *testing.T) {
	ev := automation.NewEvent(automation.EventCardArchived, "b1", "c1")
	trig := automation.KindTrigger{Kind: automation.EventCardArchived}

	broken := rule("broken", trig)
	broken.ActionsErr = errors.New("decode actions: bad days")

	rules := []automation.Rule{rule("first", trig), broken, rule("last", trig)}
	assert.Equal(t, []string{"first", "last"}, ruleIDs(Match(rules, ev, nil)))
}

func TestMatch_PreservesInputOrder(t *testing.T) {
	ev := automation.NewEvent(automation.EventCardMoved, "b1", "c1", automation.WithMove("todo", "done"))

	rules := []automation.Rule{
		rule("z", automation.CardMovedTrigger{}),
		rule("a", automation.CardMovedTrigger{ToListID: "done"}),
		rule("m", automation.CardMovedTrigger{FromListID: "todo"}),
	}
	assert.Equal(t, []string{"z", "a", "m"}, ruleIDs(Match(rules, ev, nil)))
}
