package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// CreateBoard inserts a board. An empty ID is replaced with a UUIDv7.
func (s *Store) CreateBoard(ctx context.Context, b automation.Board) (automation.Board, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, name, created_at) VALUES (?, ?, ?)`,
		b.ID, b.Name, toMillis(b.CreatedAt),
	)
	if err != nil {
		return automation.Board{}, fmt.Errorf("create board: %w", err)
	}
	return b, nil
}

// CreateList inserts a list on a board.
func (s *Store) CreateList(ctx context.Context, l automation.List) (automation.List, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (id, board_id, name, position) VALUES (?, ?, ?, ?)`,
		l.ID, l.BoardID, l.Name, l.Position,
	)
	if err != nil {
		return automation.List{}, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

// CreateLabel inserts a label on a board.
func (s *Store) CreateLabel(ctx context.Context, l automation.Label) (automation.Label, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (id, board_id, name, color) VALUES (?, ?, ?, ?)`,
		l.ID, l.BoardID, l.Name, l.Color,
	)
	if err != nil {
		return automation.Label{}, fmt.Errorf("create label: %w", err)
	}
	return l, nil
}

// DeleteLabel removes a label and, by cascade, its card attachments.
func (s *Store) DeleteLabel(ctx context.Context, labelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM labels WHERE id = ?`, labelID); err != nil {
		return fmt.Errorf("delete label %s: %w", labelID, err)
	}
	return nil
}

// CreateMember inserts a board member.
func (s *Store) CreateMember(ctx context.Context, m automation.Member) (automation.Member, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name) VALUES (?, ?)`,
		m.ID, m.Name,
	)
	if err != nil {
		return automation.Member{}, fmt.Errorf("create member: %w", err)
	}
	return m, nil
}

// CreateCard inserts a card. The caller chooses the position.
func (s *Store) CreateCard(ctx context.Context, c automation.Card) (automation.Card, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards
		(id, board_id, list_id, title, position, due_date, start_date, archived_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.BoardID, c.ListID, c.Title, c.Position,
		nullableMillis(c.DueDate), nullableMillis(c.StartDate), nullableMillis(c.ArchivedAt),
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return automation.Card{}, fmt.Errorf("create card: %w", err)
	}
	return c, nil
}

const cardColumns = `id, board_id, list_id, title, position, due_date, start_date, archived_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (automation.Card, error) {
	var c automation.Card
	var due, start, archived sql.NullInt64
	var created int64
	if err := row.Scan(&c.ID, &c.BoardID, &c.ListID, &c.Title, &c.Position, &due, &start, &archived, &created); err != nil {
		return automation.Card{}, err
	}
	c.DueDate = timePtr(due)
	c.StartDate = timePtr(start)
	c.ArchivedAt = timePtr(archived)
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// GetCard reads one card. Returns ErrNotFound if it does not exist.
func (s *Store) GetCard(ctx context.Context, cardID string) (automation.Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, cardID)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.Card{}, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return automation.Card{}, fmt.Errorf("get card %s: %w", cardID, err)
	}
	return c, nil
}

func (s *Store) queryCards(ctx context.Context, query string, args ...any) ([]automation.Card, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	cards := []automation.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

// ListCards returns the cards of a list ordered by position.
func (s *Store) ListCards(ctx context.Context, listID string) ([]automation.Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE list_id = ?
		ORDER BY position ASC, id ASC
	`, listID)
}

// ListDueCards returns the non-archived cards of a board that have a due date.
func (s *Store) ListDueCards(ctx context.Context, boardID string) ([]automation.Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE board_id = ? AND due_date IS NOT NULL AND archived_at IS NULL
		ORDER BY due_date ASC, id ASC
	`, boardID)
}

// PositionBounds returns the lowest and highest card positions in a list,
// ignoring excludeCardID. ok is false when no other card is in the list.
func (s *Store) PositionBounds(ctx context.Context, listID, excludeCardID string) (lo, hi float64, ok bool, err error) {
	var minPos, maxPos sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(position), MAX(position) FROM cards
		WHERE list_id = ? AND id != ?
	`, listID, excludeCardID).Scan(&minPos, &maxPos)
	if err != nil {
		return 0, 0, false, fmt.Errorf("position bounds for list %s: %w", listID, err)
	}
	if !minPos.Valid || !maxPos.Valid {
		return 0, 0, false, nil
	}
	return minPos.Float64, maxPos.Float64, true, nil
}

// UpdateCardPlacement writes a card's list and position in one statement.
func (s *Store) UpdateCardPlacement(ctx context.Context, cardID, listID string, position float64) error {
	return s.updateCard(ctx, "update card placement", `UPDATE cards SET list_id = ?, position = ? WHERE id = ?`, listID, position, cardID)
}

// SetCardDueDate sets or clears a card's due date.
func (s *Store) SetCardDueDate(ctx context.Context, cardID string, due *time.Time) error {
	return s.updateCard(ctx, "set due date", `UPDATE cards SET due_date = ? WHERE id = ?`, nullableMillis(due), cardID)
}

// SetCardStartDate sets or clears a card's start date.
func (s *Store) SetCardStartDate(ctx context.Context, cardID string, start *time.Time) error {
	return s.updateCard(ctx, "set start date", `UPDATE cards SET start_date = ? WHERE id = ?`, nullableMillis(start), cardID)
}

// SetCardArchivedAt archives (non-nil) or restores (nil) a card.
func (s *Store) SetCardArchivedAt(ctx context.Context, cardID string, at *time.Time) error {
	return s.updateCard(ctx, "set archived", `UPDATE cards SET archived_at = ? WHERE id = ?`, nullableMillis(at), cardID)
}

// DeleteCard removes a card and everything hanging off it.
func (s *Store) DeleteCard(ctx context.Context, cardID string) error {
	return s.updateCard(ctx, "delete card", `DELETE FROM cards WHERE id = ?`, cardID)
}

// updateCard runs a single-card write and maps "no row touched" to ErrNotFound.
func (s *Store) updateCard(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: card %v: %w", op, args[len(args)-1], ErrNotFound)
	}
	return nil
}

// AddCardLabel attaches a label. Attaching twice is a no-op.
// A label that does not exist fails the foreign key check.
func (s *Store) AddCardLabel(ctx context.Context, cardID, labelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_labels (card_id, label_id) VALUES (?, ?)
		ON CONFLICT(card_id, label_id) DO NOTHING
	`, cardID, labelID)
	if err != nil {
		return fmt.Errorf("add label %s to card %s: %w", labelID, cardID, err)
	}
	return nil
}

// RemoveCardLabel detaches a label. Detaching a missing label is a no-op.
func (s *Store) RemoveCardLabel(ctx context.Context, cardID, labelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM card_labels WHERE card_id = ? AND label_id = ?`, cardID, labelID)
	if err != nil {
		return fmt.Errorf("remove label %s from card %s: %w", labelID, cardID, err)
	}
	return nil
}

// AddCardMember assigns a member. Assigning twice is a no-op.
func (s *Store) AddCardMember(ctx context.Context, cardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_members (card_id, user_id) VALUES (?, ?)
		ON CONFLICT(card_id, user_id) DO NOTHING
	`, cardID, userID)
	if err != nil {
		return fmt.Errorf("assign member %s to card %s: %w", userID, cardID, err)
	}
	return nil
}

// RemoveCardMember unassigns a member. Removing a non-member is a no-op.
func (s *Store) RemoveCardMember(ctx context.Context, cardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM card_members WHERE card_id = ? AND user_id = ?`, cardID, userID)
	if err != nil {
		return fmt.Errorf("remove member %s from card %s: %w", userID, cardID, err)
	}
	return nil
}

// ListCardLabels returns the label ids attached to a card, sorted.
func (s *Store) ListCardLabels(ctx context.Context, cardID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT label_id FROM card_labels WHERE card_id = ? ORDER BY label_id`, cardID)
}

// ListCardMembers returns the member ids assigned to a card, sorted.
func (s *Store) ListCardMembers(ctx context.Context, cardID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM card_members WHERE card_id = ? ORDER BY user_id`, cardID)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
