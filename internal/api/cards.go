package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type createCardRequest struct {
	BoardID string `json:"board_id" binding:"required"`
	ListID  string `json:"list_id" binding:"required"`
	Title   string `json:"title" binding:"required"`
}

func (h *Handler) CreateCardHandler(c *gin.Context) {
	var req createCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	card, err := h.Cards.CreateCard(c.Request.Context(), req.BoardID, req.ListID, req.Title, c.GetHeader(ActorHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *Handler) DeleteCardHandler(c *gin.Context) {
	h.respond(c, h.Cards.DeleteCard(c.Request.Context(), c.Param("id"), c.GetHeader(ActorHeader)))
}

type moveCardRequest struct {
	ListID string `json:"list_id" binding:"required"`
}

func (h *Handler) MoveCardHandler(c *gin.Context) {
	var req moveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "list_id is required"})
		return
	}
	h.respond(c, h.Cards.MoveCard(c.Request.Context(), c.Param("id"), req.ListID, c.GetHeader(ActorHeader)))
}

func (h *Handler) ArchiveCardHandler(c *gin.Context) {
	h.respond(c, h.Cards.ArchiveCard(c.Request.Context(), c.Param("id"), c.GetHeader(ActorHeader)))
}

func (h *Handler) RestoreCardHandler(c *gin.Context) {
	h.respond(c, h.Cards.RestoreCard(c.Request.Context(), c.Param("id"), c.GetHeader(ActorHeader)))
}

type labelRequest struct {
	LabelID string `json:"label_id" binding:"required"`
}

func (h *Handler) AddLabelHandler(c *gin.Context) {
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label_id is required"})
		return
	}
	h.respond(c, h.Cards.AddLabel(c.Request.Context(), c.Param("id"), req.LabelID, c.GetHeader(ActorHeader)))
}

func (h *Handler) RemoveLabelHandler(c *gin.Context) {
	h.respond(c, h.Cards.RemoveLabel(c.Request.Context(), c.Param("id"), c.Param("label"), c.GetHeader(ActorHeader)))
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) AddMemberHandler(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	h.respond(c, h.Cards.AddMember(c.Request.Context(), c.Param("id"), req.UserID, c.GetHeader(ActorHeader)))
}

func (h *Handler) RemoveMemberHandler(c *gin.Context) {
	h.respond(c, h.Cards.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("member"), c.GetHeader(ActorHeader)))
}

// dateRequest carries an RFC3339 instant; null or omitted clears the date.
type dateRequest struct {
	At *string `json:"at"`
}

func (r dateRequest) parse() (*time.Time, error) {
	if r.At == nil || *r.At == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *r.At)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func (h *Handler) SetDueDateHandler(c *gin.Context) {
	at, ok := h.bindDate(c)
	if !ok {
		return
	}
	h.respond(c, h.Cards.SetDueDate(c.Request.Context(), c.Param("id"), at, c.GetHeader(ActorHeader)))
}

func (h *Handler) SetStartDateHandler(c *gin.Context) {
	at, ok := h.bindDate(c)
	if !ok {
		return
	}
	h.respond(c, h.Cards.SetStartDate(c.Request.Context(), c.Param("id"), at, c.GetHeader(ActorHeader)))
}

func (h *Handler) bindDate(c *gin.Context) (*time.Time, bool) {
	var req dateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return nil, false
	}
	at, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
		return nil, false
	}
	return at, true
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) PostCommentHandler(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	comment, err := h.Cards.PostComment(c.Request.Context(), c.Param("id"), c.GetHeader(ActorHeader), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

type checklistItemRequest struct {
	Done *bool `json:"done" binding:"required"`
}

func (h *Handler) SetChecklistItemHandler(c *gin.Context) {
	var req checklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "done is required"})
		return
	}
	h.respond(c, h.Cards.SetChecklistItemDone(c.Request.Context(), c.Param("id"), *req.Done, c.GetHeader(ActorHeader)))
}

// respond writes 204 on success or the mapped error.
func (h *Handler) respond(c *gin.Context, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
