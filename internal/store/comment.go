package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// AddComment appends a comment to a card.
func (s *Store) AddComment(ctx context.Context, c automation.CardComment) (automation.CardComment, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, card_id, author_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.CardID, c.AuthorID, c.Text, toMillis(c.CreatedAt),
	)
	if err != nil {
		return automation.CardComment{}, fmt.Errorf("add comment to card %s: %w", c.CardID, err)
	}
	return c, nil
}

// ListComments returns a card's comments oldest first.
func (s *Store) ListComments(ctx context.Context, cardID string) ([]automation.CardComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, author_id, text, created_at FROM comments
		WHERE card_id = ?
		ORDER BY created_at ASC, id ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []automation.CardComment{}
	for rows.Next() {
		var c automation.CardComment
		var created int64
		if err := rows.Scan(&c.ID, &c.CardID, &c.AuthorID, &c.Text, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}
