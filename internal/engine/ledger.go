package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
)

// appendRun persists a ledger entry. A ledger write failure is logged and
// swallowed: the rule already ran, and the caller's result reflects that.
func (e *Engine) appendRun(ctx context.Context, entry automation.RunLogEntry) automation.RunLogEntry {
	// Record even when the dispatch context is already cancelled.
	stored, err := e.store.AppendRunLog(context.WithoutCancel(ctx), entry)
	if err != nil {
		e.logger.Error("failed to append run log",
			zap.String("rule_id", entry.AutomationID),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
		return entry
	}
	return stored
}
