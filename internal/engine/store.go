package engine

import (
	"context"
	"time"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/store"
)

// Store is the slice of the record store the engine reads and writes.
// *store.Store satisfies it.
type Store interface {
	ListRules(ctx context.Context, f store.RuleFilter) ([]automation.Rule, error)
	GetRule(ctx context.Context, ruleID string) (automation.Rule, error)
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error

	GetCard(ctx context.Context, cardID string) (automation.Card, error)
	ListDueCards(ctx context.Context, boardID string) ([]automation.Card, error)
	PositionBounds(ctx context.Context, listID, excludeCardID string) (lo, hi float64, ok bool, err error)
	UpdateCardPlacement(ctx context.Context, cardID, listID string, position float64) error
	SetCardStartDate(ctx context.Context, cardID string, start *time.Time) error
	SetCardDueDate(ctx context.Context, cardID string, due *time.Time) error
	SetCardArchivedAt(ctx context.Context, cardID string, at *time.Time) error

	AddCardLabel(ctx context.Context, cardID, labelID string) error
	AddCardMember(ctx context.Context, cardID, userID string) error
	RemoveCardMember(ctx context.Context, cardID, userID string) error
	CreateChecklist(ctx context.Context, cl automation.Checklist, items []automation.ChecklistItem) (automation.Checklist, []automation.ChecklistItem, error)
	AddComment(ctx context.Context, c automation.CardComment) (automation.CardComment, error)

	AppendRunLog(ctx context.Context, e automation.RunLogEntry) (automation.RunLogEntry, error)
	QueryRunLog(ctx context.Context, automationID string, since time.Time) ([]automation.RunLogEntry, error)
}

var _ Store = (*store.Store)(nil)
