// Package board holds the card mutations that feed the automation engine.
// Every mutation commits its write first, then emits the matching event.
// Dispatch outcomes never flow back to the caller.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/engine"
)

var (
	// ErrEmptyComment is returned when a comment has no text after trimming.
	ErrEmptyComment = errors.New("comment text is empty")
	ErrInvalidInput = errors.New("invalid input")
)

const positionStep = 100.0

// Store is the subset of the record store the service writes through.
type Store interface {
	CreateCard(ctx context.Context, c automation.Card) (automation.Card, error)
	GetCard(ctx context.Context, cardID string) (automation.Card, error)
	PositionBounds(ctx context.Context, listID, excludeCardID string) (lo, hi float64, ok bool, err error)
	UpdateCardPlacement(ctx context.Context, cardID, listID string, position float64) error
	SetCardArchivedAt(ctx context.Context, cardID string, at *time.Time) error
	DeleteCard(ctx context.Context, cardID string) error
	SetCardDueDate(ctx context.Context, cardID string, due *time.Time) error
	SetCardStartDate(ctx context.Context, cardID string, start *time.Time) error

	AddCardLabel(ctx context.Context, cardID, labelID string) error
	RemoveCardLabel(ctx context.Context, cardID, labelID string) error
	ListCardLabels(ctx context.Context, cardID string) ([]string, error)
	AddCardMember(ctx context.Context, cardID, userID string) error
	RemoveCardMember(ctx context.Context, cardID, userID string) error
	ListCardMembers(ctx context.Context, cardID string) ([]string, error)

	AddComment(ctx context.Context, c automation.CardComment) (automation.CardComment, error)

	GetChecklistItem(ctx context.Context, itemID string) (automation.ChecklistItem, error)
	ListChecklistItems(ctx context.Context, checklistID string) ([]automation.ChecklistItem, error)
	ChecklistCardID(ctx context.Context, checklistID string) (string, error)
	SetChecklistItemDone(ctx context.Context, itemID string, done bool) error
}

// Emitter receives committed events. *engine.Emitter satisfies it.
type Emitter interface {
	Emit(ctx context.Context, ev automation.Event)
}

// Service performs card mutations on behalf of an actor.
type Service struct {
	store   Store
	emitter Emitter
	clock   engine.Clock
}

// New creates a service. A nil emitter drops events; a nil clock uses
// the system clock.
func New(s Store, em Emitter, clock engine.Clock) *Service {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &Service{store: s, emitter: em, clock: clock}
}

func (s *Service) emit(ctx context.Context, ev automation.Event) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, ev)
	}
}

// CreateCard appends a card to the bottom of listID.
func (s *Service) CreateCard(ctx context.Context, boardID, listID, title, actorID string) (automation.Card, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return automation.Card{}, fmt.Errorf("card title is empty: %w", ErrInvalidInput)
	}
	_, hi, ok, err := s.store.PositionBounds(ctx, listID, "")
	if err != nil {
		return automation.Card{}, fmt.Errorf("create card: %w", err)
	}
	pos := positionStep
	if ok {
		pos = hi + positionStep
	}

	card, err := s.store.CreateCard(ctx, automation.Card{
		BoardID:   boardID,
		ListID:    listID,
		Title:     title,
		Position:  pos,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return automation.Card{}, err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCardCreated, boardID, card.ID,
		automation.WithList(listID), automation.WithActor(actorID)))
	return card, nil
}

// MoveCard moves a card to the bottom of toListID. Moving a card to the
// list it is already in changes nothing and emits nothing.
func (s *Service) MoveCard(ctx context.Context, cardID, toListID, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if card.ListID == toListID {
		return nil
	}
	_, hi, ok, err := s.store.PositionBounds(ctx, toListID, cardID)
	if err != nil {
		return fmt.Errorf("move card: %w", err)
	}
	pos := positionStep
	if ok {
		pos = hi + positionStep
	}
	if err := s.store.UpdateCardPlacement(ctx, cardID, toListID, pos); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCardMoved, card.BoardID, cardID,
		automation.WithMove(card.ListID, toListID), automation.WithActor(actorID)))
	return nil
}

// ArchiveCard stamps the card archived. Archiving twice is a no-op.
func (s *Service) ArchiveCard(ctx context.Context, cardID, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if card.Archived() {
		return nil
	}
	now := s.clock.Now()
	if err := s.store.SetCardArchivedAt(ctx, cardID, &now); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCardArchived, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID)))
	return nil
}

// RestoreCard clears the archive stamp. Restoring a live card is a no-op.
func (s *Service) RestoreCard(ctx context.Context, cardID, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if !card.Archived() {
		return nil
	}
	if err := s.store.SetCardArchivedAt(ctx, cardID, nil); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCardRestored, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID)))
	return nil
}

// DeleteCard removes the card and everything attached to it.
func (s *Service) DeleteCard(ctx context.Context, cardID, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCardDeleted, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID)))
	return nil
}

// AddLabel attaches a label. Re-adding an attached label emits nothing.
func (s *Service) AddLabel(ctx context.Context, cardID, labelID, actorID string) error {
	return s.attach(ctx, cardID, labelID, actorID, attachment{
		kind:   automation.EventLabelAdded,
		extra:  "label_id",
		list:   s.store.ListCardLabels,
		mutate: s.store.AddCardLabel,
	})
}

// RemoveLabel detaches a label. Removing an absent label emits nothing.
func (s *Service) RemoveLabel(ctx context.Context, cardID, labelID, actorID string) error {
	return s.attach(ctx, cardID, labelID, actorID, attachment{
		kind:   automation.EventLabelRemoved,
		extra:  "label_id",
		remove: true,
		list:   s.store.ListCardLabels,
		mutate: s.store.RemoveCardLabel,
	})
}

// AddMember assigns a member to the card.
func (s *Service) AddMember(ctx context.Context, cardID, userID, actorID string) error {
	return s.attach(ctx, cardID, userID, actorID, attachment{
		kind:   automation.EventMemberAdded,
		extra:  "member_id",
		list:   s.store.ListCardMembers,
		mutate: s.store.AddCardMember,
	})
}

// RemoveMember unassigns a member from the card.
func (s *Service) RemoveMember(ctx context.Context, cardID, userID, actorID string) error {
	return s.attach(ctx, cardID, userID, actorID, attachment{
		kind:   automation.EventMemberRemoved,
		extra:  "member_id",
		remove: true,
		list:   s.store.ListCardMembers,
		mutate: s.store.RemoveCardMember,
	})
}

type attachment struct {
	kind   automation.EventKind
	extra  string
	remove bool
	list   func(ctx context.Context, cardID string) ([]string, error)
	mutate func(ctx context.Context, cardID, id string) error
}

func (s *Service) attach(ctx context.Context, cardID, id, actorID string, a attachment) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	current, err := a.list(ctx, cardID)
	if err != nil {
		return err
	}
	if slices.Contains(current, id) != a.remove {
		return nil
	}
	if err := a.mutate(ctx, cardID, id); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(a.kind, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID),
		automation.WithExtra(a.extra, id)))
	return nil
}

// SetDueDate sets or clears (nil) the due date.
func (s *Service) SetDueDate(ctx context.Context, cardID string, due *time.Time, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.store.SetCardDueDate(ctx, cardID, due); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventDueChanged, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID)))
	return nil
}

// SetStartDate sets or clears (nil) the start date.
func (s *Service) SetStartDate(ctx context.Context, cardID string, start *time.Time, actorID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.store.SetCardStartDate(ctx, cardID, start); err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventStartChanged, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID)))
	return nil
}

// PostComment adds a comment written by authorID.
func (s *Service) PostComment(ctx context.Context, cardID, authorID, text string) (automation.CardComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return automation.CardComment{}, ErrEmptyComment
	}
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return automation.CardComment{}, err
	}
	comment, err := s.store.AddComment(ctx, automation.CardComment{
		CardID:    cardID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return automation.CardComment{}, err
	}
	s.emit(ctx, automation.NewEvent(automation.EventCommentPosted, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(authorID),
		automation.WithExtra("comment_id", comment.ID)))
	return comment, nil
}

// SetChecklistItemDone toggles an item. checklist.completed is emitted only
// when this change takes the checklist from incomplete to complete.
func (s *Service) SetChecklistItemDone(ctx context.Context, itemID string, done bool, actorID string) error {
	item, err := s.store.GetChecklistItem(ctx, itemID)
	if err != nil {
		return err
	}
	before, err := s.store.ListChecklistItems(ctx, item.ChecklistID)
	if err != nil {
		return err
	}
	if err := s.store.SetChecklistItemDone(ctx, itemID, done); err != nil {
		return err
	}
	after, err := s.store.ListChecklistItems(ctx, item.ChecklistID)
	if err != nil {
		return err
	}
	if automation.IsChecklistComplete(before) || !automation.IsChecklistComplete(after) {
		return nil
	}

	cardID, err := s.store.ChecklistCardID(ctx, item.ChecklistID)
	if err != nil {
		return err
	}
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	s.emit(ctx, automation.NewEvent(automation.EventChecklistCompleted, card.BoardID, cardID,
		automation.WithList(card.ListID), automation.WithActor(actorID),
		automation.WithExtra("checklist_id", item.ChecklistID)))
	return nil
}
