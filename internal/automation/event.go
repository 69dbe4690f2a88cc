package automation

import (
	"encoding/json"
	"fmt"
	"maps"
)

// EventKind identifies a board domain event.
type EventKind string

const (
	EventCardMoved          EventKind = "card.moved"
	EventCardCreated        EventKind = "card.created"
	EventCardArchived       EventKind = "card.archived"
	EventCardRestored       EventKind = "card.restored"
	EventCardDeleted        EventKind = "card.deleted"
	EventLabelAdded         EventKind = "label.added"
	EventLabelRemoved       EventKind = "label.removed"
	EventChecklistCompleted EventKind = "checklist.completed"
	EventCommentPosted      EventKind = "comment.posted"
	EventAttachmentAdded    EventKind = "attachment.added"
	EventCoverChanged       EventKind = "cover.changed"
	EventDueChanged         EventKind = "due.changed"
	EventStartChanged       EventKind = "start.changed"
	EventDueApproaching     EventKind = "due.approaching"
	EventDuePast            EventKind = "due.past"
	EventMemberAdded        EventKind = "member.added"
	EventMemberRemoved      EventKind = "member.removed"
)

var allEventKinds = []EventKind{
	EventCardMoved,
	EventCardCreated,
	EventCardArchived,
	EventCardRestored,
	EventCardDeleted,
	EventLabelAdded,
	EventLabelRemoved,
	EventChecklistCompleted,
	EventCommentPosted,
	EventAttachmentAdded,
	EventCoverChanged,
	EventDueChanged,
	EventStartChanged,
	EventDueApproaching,
	EventDuePast,
	EventMemberAdded,
	EventMemberRemoved,
}

// AllEventKinds returns every known event kind in declaration order.
func AllEventKinds() []EventKind {
	out := make([]EventKind, len(allEventKinds))
	copy(out, allEventKinds)
	return out
}

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	for _, known := range allEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsDueWindow reports whether k is produced by the schedule poller.
func (k EventKind) IsDueWindow() bool {
	return k == EventDueApproaching || k == EventDuePast
}

// ParseEventKind validates a wire string.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Event is a normalized board domain event.
//
// Fields are unexported so an Event cannot change after NewEvent returns.
type Event struct {
	kind       EventKind
	boardID    string
	cardID     string
	listID     string
	fromListID string
	toListID   string
	actorID    string
	extra      map[string]any
}

// EventOption configures optional event fields.
type EventOption func(*Event)

// WithList sets the list the card lives in (card.created and friends).
func WithList(listID string) EventOption {
	return func(e *Event) { e.listID = listID }
}

// WithMove records the source and destination lists of a card.moved event.
func WithMove(fromListID, toListID string) EventOption {
	return func(e *Event) {
		e.fromListID = fromListID
		e.toListID = toListID
		e.listID = toListID
	}
}

// WithActor records the member who caused the event.
func WithActor(actorID string) EventOption {
	return func(e *Event) { e.actorID = actorID }
}

// WithExtra attaches a free-form detail.
func WithExtra(key string, value any) EventOption {
	return func(e *Event) {
		if e.extra == nil {
			e.extra = make(map[string]any)
		}
		e.extra[key] = value
	}
}

// NewEvent builds an immutable event.
func NewEvent(kind EventKind, boardID, cardID string, opts ...EventOption) Event {
	e := Event{kind: kind, boardID: boardID, cardID: cardID}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e Event) Kind() EventKind    { return e.kind }
func (e Event) BoardID() string    { return e.boardID }
func (e Event) CardID() string     { return e.cardID }
func (e Event) ListID() string     { return e.listID }
func (e Event) FromListID() string { return e.fromListID }
func (e Event) ToListID() string   { return e.toListID }
func (e Event) ActorID() string    { return e.actorID }

// Extra returns a copy of the free-form details.
func (e Event) Extra() map[string]any {
	if e.extra == nil {
		return nil
	}
	return maps.Clone(e.extra)
}

// Snapshot renders the canonical JSON payload stored in the run ledger.
func (e Event) Snapshot() (string, error) {
	payload := map[string]any{
		"type":     string(e.kind),
		"board_id": e.boardID,
		"card_id":  e.cardID,
	}
	optional := map[string]string{
		"list_id":      e.listID,
		"from_list_id": e.fromListID,
		"to_list_id":   e.toListID,
		"actor_id":     e.actorID,
	}
	for k, v := range optional {
		if v != "" {
			payload[k] = v
		}
	}
	if len(e.extra) > 0 {
		payload["extra"] = e.extra
	}

	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("snapshot event %s: %w", e.kind, err)
	}
	return string(data), nil
}

// SnapshotRef is the part of a ledger payload the poller dedups on.
type SnapshotRef struct {
	Type   EventKind `json:"type"`
	CardID string    `json:"card_id"`
}

// ParseSnapshot reads the event kind and card back out of a ledger payload.
func ParseSnapshot(payload string) (SnapshotRef, error) {
	var ref SnapshotRef
	if err := json.Unmarshal([]byte(payload), &ref); err != nil {
		return SnapshotRef{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return ref, nil
}
