package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// CreateChecklist inserts a checklist and its items in one transaction.
// Items keep the positions the caller assigned.
func (s *Store) CreateChecklist(ctx context.Context, cl automation.Checklist, items []automation.ChecklistItem) (automation.Checklist, []automation.ChecklistItem, error) {
	if cl.ID == "" {
		cl.ID = newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return automation.Checklist{}, nil, fmt.Errorf("begin checklist tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checklists (id, card_id, title, created_at) VALUES (?, ?, ?, ?)`,
		cl.ID, cl.CardID, cl.Title, toMillis(time.Now()),
	)
	if err != nil {
		return automation.Checklist{}, nil, fmt.Errorf("create checklist: %w", err)
	}

	stored := make([]automation.ChecklistItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = newID()
		}
		item.ChecklistID = cl.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO checklist_items (id, checklist_id, text, position, done) VALUES (?, ?, ?, ?, ?)`,
			item.ID, item.ChecklistID, item.Text, item.Position, boolToInt(item.Done),
		)
		if err != nil {
			return automation.Checklist{}, nil, fmt.Errorf("create checklist item: %w", err)
		}
		stored = append(stored, item)
	}

	if err := tx.Commit(); err != nil {
		return automation.Checklist{}, nil, fmt.Errorf("commit checklist: %w", err)
	}
	return cl, stored, nil
}

// ListChecklists returns the checklists on a card in creation order.
func (s *Store) ListChecklists(ctx context.Context, cardID string) ([]automation.Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, title FROM checklists
		WHERE card_id = ?
		ORDER BY created_at ASC, id ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("query checklists: %w", err)
	}
	defer rows.Close()

	lists := []automation.Checklist{}
	for rows.Next() {
		var cl automation.Checklist
		if err := rows.Scan(&cl.ID, &cl.CardID, &cl.Title); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		lists = append(lists, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	return lists, nil
}

// ListChecklistItems returns a checklist's items ordered by position.
func (s *Store) ListChecklistItems(ctx context.Context, checklistID string) ([]automation.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, checklist_id, text, position, done FROM checklist_items
		WHERE checklist_id = ?
		ORDER BY position ASC, id ASC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("query checklist items: %w", err)
	}
	defer rows.Close()

	items := []automation.ChecklistItem{}
	for rows.Next() {
		var item automation.ChecklistItem
		var done int
		if err := rows.Scan(&item.ID, &item.ChecklistID, &item.Text, &item.Position, &done); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		item.Done = done != 0
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}
	return items, nil
}

// GetChecklistItem reads one item. Returns ErrNotFound if it does not exist.
func (s *Store) GetChecklistItem(ctx context.Context, itemID string) (automation.ChecklistItem, error) {
	var item automation.ChecklistItem
	var done int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, checklist_id, text, position, done FROM checklist_items WHERE id = ?
	`, itemID).Scan(&item.ID, &item.ChecklistID, &item.Text, &item.Position, &done)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.ChecklistItem{}, fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return automation.ChecklistItem{}, fmt.Errorf("get checklist item %s: %w", itemID, err)
	}
	item.Done = done != 0
	return item, nil
}

// ChecklistCardID returns the card a checklist hangs off.
func (s *Store) ChecklistCardID(ctx context.Context, checklistID string) (string, error) {
	var cardID string
	err := s.db.QueryRowContext(ctx, `SELECT card_id FROM checklists WHERE id = ?`, checklistID).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checklist %s: %w", checklistID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get checklist %s: %w", checklistID, err)
	}
	return cardID, nil
}

// SetChecklistItemDone toggles an item's done flag.
func (s *Store) SetChecklistItemDone(ctx context.Context, itemID string, done bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE checklist_items SET done = ? WHERE id = ?`, boolToInt(done), itemID)
	if err != nil {
		return fmt.Errorf("set checklist item done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set checklist item done: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
	}
	return nil
}
