package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/board"
	"github.com/roach88/autoboard/internal/engine"
	"github.com/roach88/autoboard/internal/store"
	"github.com/roach88/autoboard/internal/testutil"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testServer struct {
	store  *store.Store
	router *gin.Engine
	clock  *testutil.SettableClock
}

// newTestServer serves board b1 (lists todo/done, label urgent, card c1 in
// todo) with rule tag-done labelling cards moved into done.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.CreateBoard(ctx, automation.Board{ID: "b1", Name: "Board"})
	require.NoError(t, err)
	for i, id := range []string{"todo", "done"} {
		_, err := s.CreateList(ctx, automation.List{ID: id, BoardID: "b1", Name: id, Position: float64(i+1) * 100})
		require.NoError(t, err)
	}
	_, err = s.CreateLabel(ctx, automation.Label{ID: "urgent", BoardID: "b1", Name: "Urgent"})
	require.NoError(t, err)
	_, err = s.CreateCard(ctx, automation.Card{ID: "c1", BoardID: "b1", ListID: "todo", Title: "Card", Position: 100})
	require.NoError(t, err)
	_, err = s.SaveRule(ctx, automation.Rule{
		ID:          "tag-done",
		BoardID:     "b1",
		Name:        "Tag done",
		Enabled:     true,
		TriggerType: automation.TriggerEvent,
		Trigger:     automation.CardMovedTrigger{ToListID: "done"},
		Actions:     []automation.Action{automation.AddLabel{LabelID: "urgent"}},
	})
	require.NoError(t, err)

	clock := testutil.NewSettableClock(epoch)
	eng := engine.New(s, engine.WithClock(clock), engine.WithLogger(zap.NewNop()))
	h := &Handler{
		Engine: eng,
		Rules:  s,
		Cards:  board.New(s, engine.NewEmitter(eng, zap.NewNop()), clock),
		DB:     s.DB(),
		Logger: zap.NewNop(),
	}
	return &testServer{store: s, router: NewRouter(h, zap.NewNop()), clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "u1")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDispatchEvent(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"type":         "card.moved",
		"board_id":     "b1",
		"card_id":      "c1",
		"from_list_id": "todo",
		"to_list_id":   "done",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[engine.DispatchResult](t, w).Triggered)

	labels, err := ts.store.ListCardLabels(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, labels)

	// A non-matching destination triggers nothing.
	w = ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"type": "card.moved", "board_id": "b1", "card_id": "c1", "to_list_id": "todo",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[engine.DispatchResult](t, w).Triggered)
}

func TestDispatchEvent_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"unknown type", map[string]any{"type": "card.exploded", "board_id": "b1", "card_id": "c1"}},
		{"missing board", map[string]any{"type": "card.moved", "card_id": "c1"}},
		{"not an object", []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPoll(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/poll", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, engine.PollResult{}, decode[engine.PollResult](t, w))
}

func TestRules(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/rules?board=b1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Rules []automation.RuleView `json:"rules"`
	}](t, w)
	require.Len(t, list.Rules, 1)
	assert.Equal(t, "tag-done", list.Rules[0].ID)
	assert.JSONEq(t, `{"event":"card.moved","to_list_id":"done"}`, string(list.Rules[0].Trigger))

	w = ts.do(t, http.MethodGet, "/api/rules?board=other", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rules":[]}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/rules/tag-done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[automation.RuleView](t, w).Enabled)

	w = ts.do(t, http.MethodGet, "/api/rules/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRule(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPatch, "/api/rules/tag-done", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"tag-done","enabled":false}`, w.Body.String())

	r, err := ts.store.GetRule(context.Background(), "tag-done")
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	// Disabled rules no longer fire.
	w = ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"type": "card.moved", "board_id": "b1", "card_id": "c1", "to_list_id": "done",
	})
	assert.Equal(t, 0, decode[engine.DispatchResult](t, w).Triggered)

	w = ts.do(t, http.MethodPatch, "/api/rules/tag-done", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/rules/ghost", map[string]any{"enabled": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t)

	for range 3 {
		w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
			"type": "card.moved", "board_id": "b1", "card_id": "c1", "to_list_id": "done",
		})
		require.Equal(t, http.StatusOK, w.Code)
		ts.clock.Advance(time.Minute)
	}

	type runsBody struct {
		Runs []automation.RunLogEntry `json:"runs"`
	}

	w := ts.do(t, http.MethodGet, "/api/rules/tag-done/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	runs := decode[runsBody](t, w).Runs
	require.Len(t, runs, 3)
	assert.True(t, runs[0].CreatedAt.After(runs[2].CreatedAt), "newest first")

	w = ts.do(t, http.MethodGet, "/api/rules/tag-done/runs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[runsBody](t, w).Runs, 2)

	since := epoch.Add(time.Minute).Format(time.RFC3339)
	w = ts.do(t, http.MethodGet, "/api/rules/tag-done/runs?since="+since, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[runsBody](t, w).Runs, 2)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/rules/tag-done/runs?limit=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/rules/tag-done/runs?since=yesterday", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/rules/ghost/runs", nil).Code)
}

func TestCardRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	w := ts.do(t, http.MethodPost, "/api/cards", map[string]any{"board_id": "b1", "list_id": "todo", "title": "New"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	card := decode[automation.Card](t, w)
	assert.Equal(t, 200.0, card.Position)

	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/move", map[string]any{"list_id": "done"})
	require.Equal(t, http.StatusNoContent, w.Code)
	labels, err := ts.store.ListCardLabels(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, labels, "move fired tag-done")

	w = ts.do(t, http.MethodPut, "/api/cards/"+card.ID+"/due", map[string]any{"at": "2026-03-05T12:00:00Z"})
	require.Equal(t, http.StatusNoContent, w.Code)
	got, err := ts.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), *got.DueDate)

	w = ts.do(t, http.MethodPut, "/api/cards/"+card.ID+"/due", map[string]any{"at": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/comments", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/comments", map[string]any{"text": "done!"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", decode[automation.CardComment](t, w).AuthorID)

	w = ts.do(t, http.MethodDelete, "/api/cards/"+card.ID+"/labels/urgent", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/archive", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/restore", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/cards/"+card.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/api/cards/"+card.ID+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChecklistItemRoute(t *testing.T) {
	ts := newTestServer(t)
	_, items, err := ts.store.CreateChecklist(context.Background(),
		automation.Checklist{CardID: "c1", Title: "Steps"},
		[]automation.ChecklistItem{{Text: "only", Position: 100}},
	)
	require.NoError(t, err)

	w := ts.do(t, http.MethodPut, "/api/checklist-items/"+items[0].ID, map[string]any{"done": true})
	require.Equal(t, http.StatusNoContent, w.Code)

	item, err := ts.store.GetChecklistItem(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.True(t, item.Done)

	w = ts.do(t, http.MethodPut, "/api/checklist-items/"+items[0].ID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
