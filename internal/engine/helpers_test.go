package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/store"
	"github.com/roach88/autoboard/internal/testutil"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedBoard creates board b1 with lists todo/done, label urgent, member u1
// and card c1 at position 100 in todo.
func seedBoard(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateBoard(ctx, automation.Board{ID: "b1", Name: "Board"})
	require.NoError(t, err)
	for i, id := range []string{"todo", "done"} {
		_, err := s.CreateList(ctx, automation.List{ID: id, BoardID: "b1", Name: id, Position: float64(i+1) * 100})
		require.NoError(t, err)
	}
	_, err = s.CreateLabel(ctx, automation.Label{ID: "urgent", BoardID: "b1", Name: "Urgent"})
	require.NoError(t, err)
	_, err = s.CreateMember(ctx, automation.Member{ID: "u1", Name: "Ada"})
	require.NoError(t, err)
	addCard(t, s, "c1", "todo", 100)
}

func addCard(t *testing.T, s *store.Store, id, listID string, pos float64) {
	t.Helper()
	_, err := s.CreateCard(context.Background(), automation.Card{
		ID: id, BoardID: "b1", ListID: listID, Title: "Card " + id, Position: pos,
	})
	require.NoError(t, err)
}

func getCard(t *testing.T, s *store.Store, id string) automation.Card {
	t.Helper()
	c, err := s.GetCard(context.Background(), id)
	require.NoError(t, err)
	return c
}

func saveRule(t *testing.T, s *store.Store, r automation.Rule) automation.Rule {
	t.Helper()
	if r.BoardID == "" {
		r.BoardID = "b1"
	}
	if r.TriggerType == "" {
		r.TriggerType = automation.TriggerEvent
	}
	saved, err := s.SaveRule(context.Background(), r)
	require.NoError(t, err)
	return saved
}

func newTestEngine(t *testing.T, s Store, opts ...EngineOption) (*Engine, *testutil.SettableClock) {
	t.Helper()
	clock := testutil.NewSettableClock(epoch)
	base := []EngineOption{WithClock(clock), WithLogger(zap.NewNop())}
	return New(s, append(base, opts...)...), clock
}

func newTestExecutor(s Store, clock Clock) *Executor {
	return NewExecutor(s, clock, zap.NewNop(), time.Second)
}

func rule(id string, trig automation.Trigger, actions ...automation.Action) automation.Rule {
	return automation.Rule{
		ID:          id,
		BoardID:     "b1",
		Name:        id,
		Enabled:     true,
		TriggerType: automation.TriggerEvent,
		Trigger:     trig,
		Actions:     actions,
	}
}

// failingStore wraps a real store and fails selected methods.
type failingStore struct {
	*store.Store
	failListRules bool
	failComment   bool
	blockLabels   bool
}

func (f *failingStore) ListRules(ctx context.Context, filter store.RuleFilter) ([]automation.Rule, error) {
	if f.failListRules {
		return nil, errBoom
	}
	return f.Store.ListRules(ctx, filter)
}

func (f *failingStore) AddComment(ctx context.Context, c automation.CardComment) (automation.CardComment, error) {
	if f.failComment {
		return automation.CardComment{}, errBoom
	}
	return f.Store.AddComment(ctx, c)
}

// AddCardLabel blocks until the action deadline when blockLabels is set.
func (f *failingStore) AddCardLabel(ctx context.Context, cardID, labelID string) error {
	if f.blockLabels {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.Store.AddCardLabel(ctx, cardID, labelID)
}

var errBoom = errors.New("boom")
