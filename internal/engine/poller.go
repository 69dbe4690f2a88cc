package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/store"
)

// DefaultDedupWindow is how far back the poller looks for an earlier fire
// of the same rule on the same card.
const DefaultDedupWindow = 12 * time.Hour

// PollResult summarises one poller tick.
type PollResult struct {
	// Triggered counts rule/card pairs executed with status ok.
	Triggered int `json:"triggered"`
	// Skipped counts rule/card pairs suppressed by an earlier fire.
	Skipped int `json:"skipped"`
	// Failed counts rule/card pairs that errored, plus rules whose cards or
	// history could not be read.
	Failed int `json:"failed"`
}

// RuleRunner executes one rule against a synthesised event.
type RuleRunner func(ctx context.Context, rule automation.Rule, ev automation.Event) automation.RunLogEntry

// Poller fires due-window rules for cards whose due date falls inside the
// rule's window. It bypasses the matcher and calls the runner directly.
type Poller struct {
	store       Store
	clock       Clock
	run         RuleRunner
	lock        PollLock
	dedupWindow time.Duration
	logger      *zap.Logger
}

// NewPoller creates a poller. A zero dedupWindow uses DefaultDedupWindow and
// a nil lock uses a LocalPollLock.
func NewPoller(s Store, clock Clock, run RuleRunner, lock PollLock, dedupWindow time.Duration, logger *zap.Logger) *Poller {
	if clock == nil {
		clock = SystemClock{}
	}
	if lock == nil {
		lock = NewLocalPollLock()
	}
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		store:       s,
		clock:       clock,
		run:         run,
		lock:        lock,
		dedupWindow: dedupWindow,
		logger:      logger,
	}
}

// firedKey identifies one earlier fire in the ledger.
type firedKey struct {
	cardID string
	kind   automation.EventKind
}

// PollDue runs one tick across all boards.
//
// The tick is skipped (zero result, nil error) when another poller holds the
// lock. Per-rule and per-card failures are counted and logged; only failing
// to acquire the lock or to list rules is returned.
func (p *Poller) PollDue(ctx context.Context) (PollResult, error) {
	release, ok, err := p.lock.TryAcquire(ctx)
	if err != nil {
		return PollResult{}, fmt.Errorf("acquire poll lock: %w", err)
	}
	if !ok {
		p.logger.Debug("poll tick skipped, lock held elsewhere")
		return PollResult{}, nil
	}
	defer release()

	rules, err := p.store.ListRules(ctx, store.RuleFilter{
		TriggerType: automation.TriggerDue,
		EnabledOnly: true,
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("list due rules: %w", err)
	}

	now := p.clock.Now()
	since := now.Add(-p.dedupWindow)
	boardCards := make(map[string][]automation.Card)

	var result PollResult
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		trig, ok := rule.Trigger.(automation.DueWindowTrigger)
		if !ok {
			p.logger.Warn("due rule has no due-window trigger",
				zap.String("rule_id", rule.ID),
				zap.String("board_id", rule.BoardID),
				zap.Error(rule.TriggerErr),
			)
			continue
		}
		if rule.ActionsErr != nil {
			p.logger.Warn("skipping due rule with unusable actions",
				zap.String("rule_id", rule.ID),
				zap.String("board_id", rule.BoardID),
				zap.Error(rule.ActionsErr),
			)
			continue
		}

		cards, found := boardCards[rule.BoardID]
		if !found {
			cards, err = p.store.ListDueCards(ctx, rule.BoardID)
			if err != nil {
				p.logger.Error("failed to list due cards",
					zap.String("rule_id", rule.ID),
					zap.String("board_id", rule.BoardID),
					zap.Error(err),
				)
				result.Failed++
				continue
			}
			boardCards[rule.BoardID] = cards
		}

		fired, err := p.recentFires(ctx, rule.ID, since)
		if err != nil {
			p.logger.Error("failed to read run history",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			result.Failed++
			continue
		}

		for _, card := range cards {
			if card.DueDate == nil || !InDueWindow(*card.DueDate, now, trig) {
				continue
			}
			key := firedKey{cardID: card.ID, kind: trig.Kind}
			if fired[key] {
				result.Skipped++
				continue
			}
			fired[key] = true

			ev := automation.NewEvent(trig.Kind, rule.BoardID, card.ID, automation.WithList(card.ListID))
			entry := p.run(ctx, rule, ev)
			if entry.Status == automation.RunOK {
				result.Triggered++
			} else {
				result.Failed++
			}
		}
	}

	p.logger.Info("poll tick complete",
		zap.Int("triggered", result.Triggered),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// recentFires returns the (card, kind) pairs the rule fired for since the
// given time. Entries count whatever their status.
func (p *Poller) recentFires(ctx context.Context, ruleID string, since time.Time) (map[firedKey]bool, error) {
	entries, err := p.store.QueryRunLog(ctx, ruleID, since)
	if err != nil {
		return nil, err
	}
	fired := make(map[firedKey]bool, len(entries))
	for _, entry := range entries {
		ref, err := automation.ParseSnapshot(entry.Payload)
		if err != nil {
			continue
		}
		fired[firedKey{cardID: ref.CardID, kind: ref.Type}] = true
	}
	return fired, nil
}

// InDueWindow reports whether a due date falls inside a trigger's window.
//
// The distance is rounded to whole minutes. due.approaching fires from
// Minutes before the due date up to the due date; due.past fires from the
// due date up to Minutes after it.
func InDueWindow(due, now time.Time, trig automation.DueWindowTrigger) bool {
	diff := int(math.Round(due.Sub(now).Minutes()))
	switch trig.Kind {
	case automation.EventDueApproaching:
		return diff >= 0 && diff <= trig.Minutes
	case automation.EventDuePast:
		return diff <= 0 && -diff <= trig.Minutes
	default:
		return false
	}
}
