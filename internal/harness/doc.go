// Package harness runs automation scenarios end to end.
//
// A scenario seeds a board, installs rules, then drives the board service,
// the engine and a settable clock through a flow of steps. Every ledger
// entry the engine appends is captured in the trace, so scenarios can assert
// on which rules ran, in what order, and what the board looks like after.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: done_cleanup
//	description: "Cards moved to done get tagged"
//	now: 2026-03-02T09:00:00Z
//	board:
//	  id: b1
//	  lists: [todo, done]
//	  labels: [shipped]
//	  cards:
//	    - { id: c1, list: todo, due: "+90m" }
//	rules:
//	  - id: tag-done
//	    trigger: { type: event, event: card.moved, to_list_id: done }
//	    actions:
//	      - { type: add_label, label_id: shipped }
//	flow:
//	  - invoke: card.move
//	    args: { card: c1, list: done }
//	    expect: { runs: 1 }
//	assertions:
//	  - type: trace_contains
//	    rule: tag-done
//	    status: ok
//	  - type: card_state
//	    card: c1
//	    expect: { labels: [shipped] }
//
// Rules may also come from a directory of CUE files via the rulebook key.
//
// # Assertion Types
//
//   - trace_contains: a run of the rule exists (optionally by status, event, card)
//   - trace_order: the first runs of the listed rules appear in order
//   - trace_count: the rule ran exactly N times
//   - card_state: card fields, labels, members, comments and checklists
//   - final_state: queries a table and verifies one row
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite database and a clock that only moves
// through clock.advance and clock.set steps, so the trace is stable enough for
// golden snapshot comparison.
package harness
