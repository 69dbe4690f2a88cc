package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/board"
	"github.com/roach88/autoboard/internal/engine"
	"github.com/roach88/autoboard/internal/store"
)

// ActorHeader names the member performing a card mutation.
const ActorHeader = "X-Actor-ID"

const defaultRunLimit = 50

// Engine is the automation surface the handlers drive. *engine.Engine
// satisfies it.
type Engine interface {
	Dispatch(ctx context.Context, ev automation.Event) (engine.DispatchResult, error)
	PollDue(ctx context.Context) (engine.PollResult, error)
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error
}

// RuleStore reads rules and their run ledger. *store.Store satisfies it.
type RuleStore interface {
	ListRules(ctx context.Context, f store.RuleFilter) ([]automation.Rule, error)
	GetRule(ctx context.Context, ruleID string) (automation.Rule, error)
	ListRecentRuns(ctx context.Context, automationID string, limit int) ([]automation.RunLogEntry, error)
	QueryRunLog(ctx context.Context, automationID string, since time.Time) ([]automation.RunLogEntry, error)
}

// Pinger reports database liveness. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Engine Engine
	Rules  RuleStore
	Cards  *board.Service
	DB     Pinger
	Logger *zap.Logger
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.L()
	}
	return h.Logger
}

// respondError maps domain errors onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, board.ErrEmptyComment), errors.Is(err, board.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	if h.DB != nil {
		if err := h.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// eventRequest is the wire shape of an externally produced board event.
type eventRequest struct {
	Type       string         `json:"type" binding:"required"`
	BoardID    string         `json:"board_id" binding:"required"`
	CardID     string         `json:"card_id" binding:"required"`
	ListID     string         `json:"list_id"`
	FromListID string         `json:"from_list_id"`
	ToListID   string         `json:"to_list_id"`
	ActorID    string         `json:"actor_id"`
	Extra      map[string]any `json:"extra"`
}

func (r eventRequest) event() (automation.Event, error) {
	kind, err := automation.ParseEventKind(r.Type)
	if err != nil {
		return automation.Event{}, err
	}
	var opts []automation.EventOption
	if r.ListID != "" {
		opts = append(opts, automation.WithList(r.ListID))
	}
	if r.FromListID != "" || r.ToListID != "" {
		opts = append(opts, automation.WithMove(r.FromListID, r.ToListID))
	}
	if r.ActorID != "" {
		opts = append(opts, automation.WithActor(r.ActorID))
	}
	for k, v := range r.Extra {
		opts = append(opts, automation.WithExtra(k, v))
	}
	return automation.NewEvent(kind, r.BoardID, r.CardID, opts...), nil
}

func (h *Handler) DispatchEventHandler(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	ev, err := req.event()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Engine.Dispatch(c.Request.Context(), ev)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PollHandler(c *gin.Context) {
	res, err := h.Engine.PollDue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListRulesHandler(c *gin.Context) {
	filter := store.RuleFilter{BoardID: c.Query("board")}
	if c.Query("enabled") == "true" {
		filter.EnabledOnly = true
	}
	rules, err := h.Rules.ListRules(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]automation.RuleView, 0, len(rules))
	for _, r := range rules {
		v, err := r.View()
		if err != nil {
			h.respondError(c, err)
			return
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"rules": views})
}

func (h *Handler) GetRuleHandler(c *gin.Context) {
	r, err := h.Rules.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	v, err := r.View()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type updateRuleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) UpdateRuleHandler(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	id := c.Param("id")
	if err := h.Engine.SetRuleEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

// ListRunsHandler returns ledger entries newest first. With ?since=<RFC3339>
// it returns every entry at or after that instant, otherwise the last
// ?limit= entries.
func (h *Handler) ListRunsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.Rules.GetRule(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}

	var (
		runs []automation.RunLogEntry
		err  error
	)
	if since := c.Query("since"); since != "" {
		t, perr := time.Parse(time.RFC3339, since)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		runs, err = h.Rules.QueryRunLog(ctx, id, t)
	} else {
		limit := defaultRunLimit
		if raw := c.Query("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		runs, err = h.Rules.ListRecentRuns(ctx, id, limit)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	if runs == nil {
		runs = []automation.RunLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
