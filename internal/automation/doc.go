// Package automation defines the data model of the board automation engine:
// events, rules, triggers, actions and run ledger entries.
//
// Triggers and actions are closed sum types. Their wire form is the loosely
// typed JSON stored alongside a rule; DecodeTrigger and DecodeActions turn
// that JSON into typed values once, at the store boundary, so the matcher and
// executor only ever see typed data.
//
// Events are immutable after construction. Event.Snapshot renders the
// canonical JSON payload that the run ledger persists.
package automation
