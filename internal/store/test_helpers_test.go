package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/roach88/autoboard/internal/automation"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture is a board with two lists, one label and one member.
type fixture struct {
	board  automation.Board
	todo   automation.List
	done   automation.List
	label  automation.Label
	member automation.Member
}

func seedBoard(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()

	b, err := s.CreateBoard(ctx, automation.Board{ID: "b1", Name: "Board"})
	if err != nil {
		t.Fatalf("CreateBoard() failed: %v", err)
	}
	todo, err := s.CreateList(ctx, automation.List{ID: "todo", BoardID: b.ID, Name: "Todo", Position: 100})
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	done, err := s.CreateList(ctx, automation.List{ID: "done", BoardID: b.ID, Name: "Done", Position: 200})
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	label, err := s.CreateLabel(ctx, automation.Label{ID: "urgent", BoardID: b.ID, Name: "Urgent"})
	if err != nil {
		t.Fatalf("CreateLabel() failed: %v", err)
	}
	member, err := s.CreateMember(ctx, automation.Member{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	return fixture{board: b, todo: todo, done: done, label: label, member: member}
}

func seedCard(t *testing.T, s *Store, f fixture, id string, pos float64) automation.Card {
	t.Helper()
	c, err := s.CreateCard(context.Background(), automation.Card{
		ID:       id,
		BoardID:  f.board.ID,
		ListID:   f.todo.ID,
		Title:    "Card " + id,
		Position: pos,
	})
	if err != nil {
		t.Fatalf("CreateCard(%s) failed: %v", id, err)
	}
	return c
}

func timeAt(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	return slices.Contains(slice, item)
}
