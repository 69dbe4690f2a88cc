// Package engine implements the board automation engine.
//
// The engine receives board domain events, matches them against the enabled
// rules of the event's board, and executes the matching rules' actions
// against the record store. Every rule invocation appends one entry to the
// run ledger, whatever its outcome.
//
// ARCHITECTURE:
//
// Event path:
//  1. A board mutation commits, then calls Emitter.Emit.
//  2. Engine.Dispatch snapshots the board's rules and runs Match.
//  3. Each matched rule runs through Engine.ExecuteRule in order.
//  4. ExecuteRule applies the actions and appends a ledger entry.
//
// Schedule path:
//  1. The TickWorker calls Engine.PollDue on an interval.
//  2. The Poller finds due-window rules and the cards inside their window.
//  3. Recent ledger entries suppress repeat fires for the same card.
//  4. Synthesised events go straight to ExecuteRule, skipping the matcher.
//
// Failure isolation:
// A rule failing never stops the other rules of the same dispatch, and a
// dispatch failing never fails the mutation that produced the event.
// Actions already applied before a failure are not rolled back.
//
// Card positions are float64. Repeated midpoint insertion between the same
// two neighbours eventually runs out of precision; rebalancing is not done
// here.
package engine
