package engine

import (
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
)

// Match returns the rules that should fire for ev, in input order.
//
// A rule matches when:
//  1. Its trigger type is "event" and it is enabled
//  2. Its trigger decoded and names ev's kind
//  3. The trigger's discriminators agree with ev (see matchTrigger)
//
// A rule whose trigger could not be decoded never matches. The failure is
// logged as a MatchConfigError and the other rules are unaffected.
func Match(rules []automation.Rule, ev automation.Event, logger *zap.Logger) []automation.Rule {
	if logger == nil {
		logger = zap.NewNop()
	}

	matched := make([]automation.Rule, 0, len(rules))
	for _, r := range rules {
		if r.TriggerType != automation.TriggerEvent || !r.Enabled {
			continue
		}
		if r.Trigger == nil {
			err := r.TriggerErr
			if err == nil {
				err = &MatchConfigError{RuleID: r.ID, Reason: "rule has no trigger"}
			}
			logger.Warn("skipping rule with unusable trigger",
				zap.String("rule_id", r.ID),
				zap.String("board_id", r.BoardID),
				zap.Error(err),
			)
			continue
		}
		if r.ActionsErr != nil {
			logger.Warn("skipping rule with unusable actions",
				zap.String("rule_id", r.ID),
				zap.String("board_id", r.BoardID),
				zap.Error(r.ActionsErr),
			)
			continue
		}
		if matchTrigger(r.Trigger, ev) {
			logger.Debug("rule matched",
				zap.String("rule_id", r.ID),
				zap.String("event", string(ev.Kind())),
				zap.String("card_id", ev.CardID()),
			)
			matched = append(matched, r)
		}
	}
	return matched
}

// matchTrigger applies the per-kind discriminators. Empty discriminator
// values are wildcards.
func matchTrigger(t automation.Trigger, ev automation.Event) bool {
	if t.Event() != ev.Kind() {
		return false
	}

	switch tr := t.(type) {
	case automation.CardMovedTrigger:
		if tr.ToListID != "" && tr.ToListID != ev.ToListID() {
			return false
		}
		if tr.FromListID != "" && tr.FromListID != ev.FromListID() {
			return false
		}
		return true
	case automation.CardCreatedTrigger:
		return tr.InListID == "" || tr.InListID == ev.ListID()
	case automation.LabelAddedTrigger:
		// LabelID is not compared: any label.added event matches.
		return true
	default:
		return true
	}
}
