package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, content string) *Result {
	t.Helper()
	s, err := LoadScenario(writeScenario(t, content))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_TraceShape(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "done-cleanup.yaml"))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceInvoke, result.Trace[0].Type)
	assert.Equal(t, InvokeMove, result.Trace[0].Action)

	run := result.Trace[1]
	assert.Equal(t, TraceRun, run.Type)
	assert.Equal(t, "tag-done", run.RuleID)
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, "card.moved", run.Event)
	assert.Equal(t, "c1", run.CardID)
	assert.Equal(t, "2026-03-02T09:00:00Z", run.At)

	assert.Equal(t, TraceResult, result.Trace[2].Type)
	assert.Equal(t, 1, result.Trace[2].Runs)
	assert.Len(t, result.Runs(), 1)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_ExpectRunsMismatch(t *testing.T) {
	result := runYAML(t, `
name: mismatch
description: "expects two runs but only one rule matches"
board:
  id: b1
  lists: [todo, done]
  cards: [{ id: c1, list: todo }]
rules:
  - id: r1
    trigger: { event: card.moved }
    actions: [{ type: comment, text: moved }]
flow:
  - invoke: card.move
    args: { card: c1, list: done }
    expect: { runs: 2 }
assertions:
  - { type: trace_count, rule: r1, count: 1 }
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected 2 run(s), got 1")
}

func TestRun_ExpectedError(t *testing.T) {
	result := runYAML(t, `
name: expected-error
description: "moving a missing card fails"
board: { id: b1, lists: [todo] }
flow:
  - invoke: card.move
    args: { card: ghost, list: todo }
    expect: { error: not found, runs: 0 }
assertions:
  - { type: card_state, card: ghost, expect: { exists: false } }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Trace[1].Error, "not found")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: unexpected-error
description: "a failing step without expect fails the scenario"
board: { id: b1, lists: [todo] }
flow:
  - invoke: card.archive
    args: { card: ghost }
assertions:
  - { type: trace_count, rule: none, count: 0 }
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_BrokenTriggerFailsClosed(t *testing.T) {
	result := runYAML(t, `
name: broken-trigger
description: "a rule whose trigger names no event never fires"
board:
  id: b1
  lists: [todo]
  labels: [urgent]
  cards: [{ id: c1, list: todo }]
rules:
  - id: broken
    trigger: { type: event, to_list_id: todo }
    actions: [{ type: archive_now }]
flow:
  - invoke: card.label
    args: { card: c1, label: urgent }
    expect: { runs: 0 }
assertions:
  - { type: trace_count, rule: broken, count: 0 }
  - { type: card_state, card: c1, expect: { archived: false, labels: [urgent] } }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StoreFailureRecordsErrorRun(t *testing.T) {
	result := runYAML(t, `
name: store-failure
description: "an action the store rejects marks the run as failed"
board:
  id: b1
  lists: [todo]
  cards: [{ id: c1, list: todo }]
rules:
  - id: ghost-label
    trigger: { event: card.archived }
    actions:
      - { type: add_label, label_id: ghost }
      - { type: comment, text: never written }
flow:
  - invoke: card.archive
    args: { card: c1 }
    expect: { runs: 1 }
assertions:
  - { type: trace_contains, rule: ghost-label, status: error }
  - { type: card_state, card: c1, expect: { archived: true, comments: 0 } }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	runs := result.Runs()
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "FOREIGN KEY")
}

func TestRun_UnknownActionIsSkipped(t *testing.T) {
	result := runYAML(t, `
name: unknown-action
description: "unknown actions are skipped and the rest still run"
board:
  id: b1
  lists: [todo]
  cards: [{ id: c1, list: todo }]
rules:
  - id: future
    trigger: { event: comment.posted }
    actions:
      - { type: teleport }
      - { type: archive_now }
flow:
  - invoke: card.comment
    args: { card: c1, text: hello, author: u1 }
assertions:
  - { type: trace_contains, rule: future, status: ok, event: comment.posted }
  - { type: card_state, card: c1, expect: { archived: true, comments: 1, last_comment: hello } }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DispatchRawEvent(t *testing.T) {
	result := runYAML(t, `
name: raw-event
description: "events can be dispatched without a board mutation"
board:
  id: b1
  lists: [inbox]
  cards: [{ id: c1, list: inbox }]
rules:
  - id: intake
    trigger: { event: card.created, in_list_id: inbox }
    actions:
      - { type: create_checklist, title: Triage, items: [reproduce, label] }
flow:
  - invoke: event.dispatch
    args: { type: card.created, card: c1, list: inbox, actor: u1 }
    expect: { runs: 1 }
  - invoke: event.dispatch
    args: { type: card.created, card: c1, list: elsewhere }
    expect: { runs: 0 }
assertions:
  - { type: trace_count, rule: intake, count: 1 }
  - { type: card_state, card: c1, expect: { checklists: 1 } }
  - type: final_state
    table: checklist_items
    where: { text: reproduce }
    expect: { done: false, position: 100 }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DisableAndEnableRule(t *testing.T) {
	result := runYAML(t, `
name: toggle
description: "disabled rules do not fire"
board:
  id: b1
  lists: [todo, done]
  cards: [{ id: c1, list: todo }]
rules:
  - id: r1
    trigger: { event: card.moved }
    actions: [{ type: move_to_bottom }]
flow:
  - invoke: rule.disable
    args: { rule: r1 }
  - invoke: card.move
    args: { card: c1, list: done }
    expect: { runs: 0 }
  - invoke: rule.enable
    args: { rule: r1 }
  - invoke: card.move
    args: { card: c1, list: todo }
    expect: { runs: 1 }
  - invoke: rule.enable
    args: { rule: missing }
    expect: { error: not found }
assertions:
  - { type: trace_count, rule: r1, count: 1 }
  - { type: card_state, card: c1, expect: { list: todo } }
  - type: final_state
    table: automations
    where: { id: r1 }
    expect: { enabled: true }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ChecklistCompletion(t *testing.T) {
	result := runYAML(t, `
name: checklist
description: "finishing the last item fires checklist.completed once"
board:
  id: b1
  lists: [doing, done]
  cards:
    - id: c1
      list: doing
      checklists:
        - id: cl1
          items:
            - { id: i1, text: write, done: true }
            - { id: i2, text: review }
rules:
  - id: finish
    trigger: { event: checklist.completed }
    actions: [{ type: move_to_list, list_id: done }]
flow:
  - invoke: checklist.check
    args: { item: i2 }
    expect: { runs: 1 }
  - invoke: checklist.check
    args: { item: i2, done: false }
    expect: { runs: 0 }
assertions:
  - { type: trace_contains, rule: finish, event: checklist.completed, card: c1 }
  - { type: card_state, card: c1, expect: { list: done, checklists: 1 } }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DatesAndClock(t *testing.T) {
	result := runYAML(t, `
name: dates
description: "overdue rules see dates set during the flow"
board:
  id: b1
  lists: [todo]
  members: [lead]
  cards: [{ id: c1, list: todo, start: "-1h" }]
rules:
  - id: overdue
    trigger: { type: due, event: due.past, minutes: 30 }
    actions: [{ type: assign_member, user_id: lead }]
flow:
  - invoke: card.due
    args: { card: c1, at: "+10m" }
  - invoke: clock.set
    args: { to: "2026-03-02T09:20:00Z" }
  - invoke: poll.due
    args: {}
    expect: { runs: 1 }
  - invoke: card.start
    args: { card: c1 }
assertions:
  - { type: trace_contains, rule: overdue, event: due.past }
  - type: card_state
    card: c1
    expect:
      due: "+10m"
      start: null
      members: [lead]
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupErrors(t *testing.T) {
	s := &Scenario{
		Name:        "bad-setup",
		Description: "card in a list that does not exist",
		Board: BoardFixture{
			ID:    "b1",
			Lists: []string{"todo"},
			Cards: []CardFixture{{ID: "c1", List: "nowhere"}},
		},
		Flow:       []FlowStep{{Invoke: InvokePoll, Args: map[string]any{}}},
		Assertions: []Assertion{{Type: AssertTraceCount, Rule: "r1"}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to seed board")
}
