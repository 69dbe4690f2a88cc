// Package store provides SQLite-backed storage for boards, automation rules
// and the automation run ledger.
//
// The store holds three groups of tables:
//   - Board records: boards, lists, cards, labels, members, checklists, comments
//   - Rules: automations, with trigger/conditions/actions as JSON text columns
//   - Run ledger: automation_runs, append-only, no foreign key to automations
//
// # Idempotent Writes
//
// card_labels and card_members use composite primary keys with
// ON CONFLICT DO NOTHING, so attaching the same label or member twice leaves
// one row. Attaching a label or member that does not exist fails the foreign
// key check and the error is returned to the caller.
//
// # Time
//
// Timestamps are INTEGER unix milliseconds in UTC. Optional timestamps
// (due_date, start_date, archived_at) are NULL when unset.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
