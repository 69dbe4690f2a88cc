package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TriggerType is the condition class that makes a rule eligible to fire.
type TriggerType string

const (
	TriggerEvent    TriggerType = "event"
	TriggerSchedule TriggerType = "schedule"
	TriggerDue      TriggerType = "due"
)

// ParseTriggerType validates a wire string.
func ParseTriggerType(s string) (TriggerType, error) {
	switch t := TriggerType(s); t {
	case TriggerEvent, TriggerSchedule, TriggerDue:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
}

// Trigger is the typed form of a rule's trigger configuration.
//
// Implementations: CardMovedTrigger, CardCreatedTrigger, LabelAddedTrigger,
// DueWindowTrigger, KindTrigger.
type Trigger interface {
	Event() EventKind
	isTrigger()
}

// CardMovedTrigger matches card.moved; empty list ids are wildcards.
type CardMovedTrigger struct {
	ToListID   string
	FromListID string
}

// CardCreatedTrigger matches card.created; empty InListID matches any list.
type CardCreatedTrigger struct {
	InListID string
}

// LabelAddedTrigger matches label.added. LabelID is collected by the board UI
// but the matcher does not filter on it.
type LabelAddedTrigger struct {
	LabelID string
}

// DueWindowTrigger drives the schedule poller for due.approaching and
// due.past rules.
type DueWindowTrigger struct {
	Kind    EventKind
	Minutes int
}

// KindTrigger matches on the event kind alone.
type KindTrigger struct {
	Kind EventKind
}

func (CardMovedTrigger) Event() EventKind   { return EventCardMoved }
func (CardCreatedTrigger) Event() EventKind { return EventCardCreated }
func (LabelAddedTrigger) Event() EventKind  { return EventLabelAdded }
func (t DueWindowTrigger) Event() EventKind { return t.Kind }
func (t KindTrigger) Event() EventKind      { return t.Kind }

func (CardMovedTrigger) isTrigger()   {}
func (CardCreatedTrigger) isTrigger() {}
func (LabelAddedTrigger) isTrigger()  {}
func (DueWindowTrigger) isTrigger()   {}
func (KindTrigger) isTrigger()        {}

// triggerWire is the stored JSON shape of a trigger configuration.
type triggerWire struct {
	Event      string          `json:"event"`
	ToListID   string          `json:"to_list_id,omitempty"`
	FromListID string          `json:"from_list_id,omitempty"`
	InListID   string          `json:"in_list_id,omitempty"`
	LabelID    string          `json:"label_id,omitempty"`
	Minutes    json.RawMessage `json:"minutes,omitempty"`
}

// DecodeTrigger parses a stored trigger configuration.
// A missing or unknown event yields a *MatchConfigError.
func DecodeTrigger(raw []byte) (Trigger, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &MatchConfigError{Reason: "trigger config is empty"}
	}

	var w triggerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &MatchConfigError{Reason: "trigger config is not an object", Err: err}
	}
	if w.Event == "" {
		return nil, &MatchConfigError{Reason: "trigger config has no event"}
	}
	kind, err := ParseEventKind(w.Event)
	if err != nil {
		return nil, &MatchConfigError{Reason: "trigger config event is invalid", Err: err}
	}

	if kind.IsDueWindow() {
		return DueWindowTrigger{Kind: kind, Minutes: parseMinutes(w.Minutes)}, nil
	}
	switch kind {
	case EventCardMoved:
		return CardMovedTrigger{ToListID: w.ToListID, FromListID: w.FromListID}, nil
	case EventCardCreated:
		return CardCreatedTrigger{InListID: w.InListID}, nil
	case EventLabelAdded:
		return LabelAddedTrigger{LabelID: w.LabelID}, nil
	default:
		return KindTrigger{Kind: kind}, nil
	}
}

// parseMinutes accepts a JSON number or numeric string; anything else is 0.
func parseMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return numberToMinutes(string(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return numberToMinutes(strings.TrimSpace(s))
	}
	return 0
}

func numberToMinutes(s string) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// EncodeTrigger renders the stored JSON shape of t.
func EncodeTrigger(t Trigger) ([]byte, error) {
	w := triggerWire{Event: string(t.Event())}
	switch tt := t.(type) {
	case CardMovedTrigger:
		w.ToListID = tt.ToListID
		w.FromListID = tt.FromListID
	case CardCreatedTrigger:
		w.InListID = tt.InListID
	case LabelAddedTrigger:
		w.LabelID = tt.LabelID
	case DueWindowTrigger:
		w.Minutes = json.RawMessage(strconv.Itoa(tt.Minutes))
	case KindTrigger:
	default:
		return nil, fmt.Errorf("unsupported trigger %T", t)
	}
	return json.Marshal(w)
}
