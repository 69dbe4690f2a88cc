package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
)

// DefaultActionTimeout bounds a single action's store work.
const DefaultActionTimeout = 10 * time.Second

// Position offsets used when placing a card at a list edge.
const (
	positionStep    = 100.0
	positionTopStep = 50.0
)

// Author id recorded on comments when the event carries no actor.
const automationAuthor = "automation"

const defaultChecklistTitle = "Checklist"

// Executor applies a rule's actions to the record store.
//
// Actions run in declaration order. A ValidationError skips just that action.
// The first StoreError stops the rule; actions applied before it stay applied.
type Executor struct {
	store         Store
	clock         Clock
	logger        *zap.Logger
	actionTimeout time.Duration
}

// NewExecutor creates an executor. A zero timeout uses DefaultActionTimeout.
func NewExecutor(s Store, clock Clock, logger *zap.Logger, actionTimeout time.Duration) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if actionTimeout <= 0 {
		actionTimeout = DefaultActionTimeout
	}
	return &Executor{store: s, clock: clock, logger: logger, actionTimeout: actionTimeout}
}

// Execute runs rule against ev and returns the ledger entry describing the
// outcome. The entry is not persisted here; see Engine.ExecuteRule.
func (x *Executor) Execute(ctx context.Context, rule automation.Rule, ev automation.Event) automation.RunLogEntry {
	entry := automation.RunLogEntry{
		AutomationID: rule.ID,
		Status:       automation.RunOK,
		CreatedAt:    x.clock.Now(),
	}

	payload, err := ev.Snapshot()
	if err != nil {
		entry.Status = automation.RunError
		entry.Payload = "{}"
		entry.ErrorText = fmt.Sprintf("snapshot event: %v", err)
		return entry
	}
	entry.Payload = payload

	if rule.ActionsErr != nil {
		entry.Status = automation.RunError
		entry.ErrorText = fmt.Sprintf("actions: %v", rule.ActionsErr)
		return entry
	}

	for i, action := range rule.Actions {
		if err := ctx.Err(); err != nil {
			entry.Status = automation.RunError
			entry.ErrorText = fmt.Sprintf("context cancelled before action %d: %v", i, err)
			return entry
		}

		err := x.runAction(ctx, rule, action, ev)
		if err == nil {
			continue
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			x.logger.Warn("skipping action",
				zap.String("rule_id", rule.ID),
				zap.String("action", string(action.Kind())),
				zap.String("card_id", ev.CardID()),
				zap.String("reason", ve.Message),
			)
			continue
		}

		x.logger.Error("action failed",
			zap.String("rule_id", rule.ID),
			zap.String("action", string(action.Kind())),
			zap.String("card_id", ev.CardID()),
			zap.Error(err),
		)
		entry.Status = automation.RunError
		entry.ErrorText = err.Error()
		return entry
	}

	return entry
}

// runAction applies one action under its own timeout. Non-validation errors
// come back as *StoreError.
func (x *Executor) runAction(ctx context.Context, rule automation.Rule, action automation.Action, ev automation.Event) error {
	actx, cancel := context.WithTimeout(ctx, x.actionTimeout)
	defer cancel()

	err := x.apply(actx, rule.ID, action, ev)
	if err == nil || IsValidationError(err) {
		return err
	}
	return &StoreError{RuleID: rule.ID, Action: action.Kind(), Err: err}
}

// apply dispatches on the concrete action type.
func (x *Executor) apply(ctx context.Context, ruleID string, action automation.Action, ev automation.Event) error {
	kind := action.Kind()
	cardID := ev.CardID()
	if cardID == "" {
		return invalid(ruleID, kind, "event has no card")
	}

	switch a := action.(type) {
	case automation.AddLabel:
		if a.LabelID == "" {
			return invalid(ruleID, kind, "label_id is required")
		}
		return x.store.AddCardLabel(ctx, cardID, a.LabelID)

	case automation.AssignMember:
		if a.UserID == "" {
			return invalid(ruleID, kind, "user_id is required")
		}
		return x.store.AddCardMember(ctx, cardID, a.UserID)

	case automation.RemoveMember:
		if a.UserID == "" {
			return invalid(ruleID, kind, "user_id is required")
		}
		return x.store.RemoveCardMember(ctx, cardID, a.UserID)

	case automation.MoveToList:
		if a.ListID == "" {
			return invalid(ruleID, kind, "list_id is required")
		}
		return x.moveToList(ctx, cardID, a.ListID)

	case automation.MoveToTop:
		return x.moveToEdge(ctx, cardID, true)

	case automation.MoveToBottom:
		return x.moveToEdge(ctx, cardID, false)

	case automation.SetStartDate:
		start, err := x.resolveWhen(a.When)
		if err != nil {
			return invalid(ruleID, kind, "%v", err)
		}
		return x.store.SetCardStartDate(ctx, cardID, &start)

	case automation.ShiftDueByDays:
		if a.Days == nil {
			return invalid(ruleID, kind, "days is required")
		}
		return x.shiftDue(ctx, cardID, *a.Days)

	case automation.CreateChecklist:
		return x.createChecklist(ctx, cardID, a)

	case automation.Comment:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			return invalid(ruleID, kind, "comment text is empty")
		}
		author := ev.ActorID()
		if author == "" {
			author = automationAuthor
		}
		_, err := x.store.AddComment(ctx, automation.CardComment{
			CardID:    cardID,
			AuthorID:  author,
			Text:      text,
			CreatedAt: x.clock.Now(),
		})
		return err

	case automation.ArchiveNow:
		now := x.clock.Now()
		return x.store.SetCardArchivedAt(ctx, cardID, &now)

	case automation.UnknownAction:
		return invalid(ruleID, kind, "unknown action type %q", a.Type)

	default:
		return invalid(ruleID, kind, "unsupported action %T", action)
	}
}

// moveToList appends the card to the end of the target list.
func (x *Executor) moveToList(ctx context.Context, cardID, listID string) error {
	if _, err := x.store.GetCard(ctx, cardID); err != nil {
		return err
	}
	_, hi, ok, err := x.store.PositionBounds(ctx, listID, cardID)
	if err != nil {
		return err
	}
	pos := positionStep
	if ok {
		pos = hi + positionStep
	}
	return x.store.UpdateCardPlacement(ctx, cardID, listID, pos)
}

// moveToEdge moves the card above (top) or below (bottom) its siblings.
func (x *Executor) moveToEdge(ctx context.Context, cardID string, top bool) error {
	card, err := x.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	lo, hi, ok, err := x.store.PositionBounds(ctx, card.ListID, cardID)
	if err != nil {
		return err
	}

	var pos float64
	switch {
	case top && ok:
		pos = lo - positionTopStep
	case top:
		pos = -positionTopStep
	case ok:
		pos = hi + positionStep
	default:
		pos = positionStep
	}
	return x.store.UpdateCardPlacement(ctx, cardID, card.ListID, pos)
}

// resolveWhen turns a set_start_date value into a timestamp.
// "now" and "" mean the clock's now; otherwise RFC 3339 or a bare date.
func (x *Executor) resolveWhen(when string) (time.Time, error) {
	w := strings.TrimSpace(when)
	if w == "" || strings.EqualFold(w, "now") {
		return x.clock.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, w); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, w); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable start date %q", when)
}

// shiftDue moves the due date by whole days. A card without a due date
// shifts from now.
func (x *Executor) shiftDue(ctx context.Context, cardID string, days int) error {
	card, err := x.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	base := x.clock.Now()
	if card.DueDate != nil {
		base = *card.DueDate
	}
	due := base.Add(time.Duration(days) * 24 * time.Hour)
	return x.store.SetCardDueDate(ctx, cardID, &due)
}

func (x *Executor) createChecklist(ctx context.Context, cardID string, a automation.CreateChecklist) error {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = defaultChecklistTitle
	}

	items := make([]automation.ChecklistItem, 0, len(a.Items))
	for _, text := range a.Items {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		items = append(items, automation.ChecklistItem{
			Text:     text,
			Position: positionStep * float64(len(items)+1),
		})
	}

	_, _, err := x.store.CreateChecklist(ctx, automation.Checklist{CardID: cardID, Title: title}, items)
	return err
}
