// Package api serves the automation engine and card mutations over HTTP.
package api

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires every route under /api with zap request logging and
// panic recovery.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.L()
	}
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", h.HealthCheckHandler)
		apiGroup.POST("/events", h.DispatchEventHandler)
		apiGroup.POST("/poll", h.PollHandler)

		apiGroup.GET("/rules", h.ListRulesHandler)
		apiGroup.GET("/rules/:id", h.GetRuleHandler)
		apiGroup.PATCH("/rules/:id", h.UpdateRuleHandler)
		apiGroup.GET("/rules/:id/runs", h.ListRunsHandler)
	}

	if h.Cards != nil {
		cards := apiGroup.Group("/cards")
		{
			cards.POST("", h.CreateCardHandler)
			cards.DELETE("/:id", h.DeleteCardHandler)
			cards.POST("/:id/move", h.MoveCardHandler)
			cards.POST("/:id/archive", h.ArchiveCardHandler)
			cards.POST("/:id/restore", h.RestoreCardHandler)
			cards.POST("/:id/labels", h.AddLabelHandler)
			cards.DELETE("/:id/labels/:label", h.RemoveLabelHandler)
			cards.POST("/:id/members", h.AddMemberHandler)
			cards.DELETE("/:id/members/:member", h.RemoveMemberHandler)
			cards.PUT("/:id/due", h.SetDueDateHandler)
			cards.PUT("/:id/start", h.SetStartDateHandler)
			cards.POST("/:id/comments", h.PostCommentHandler)
		}
		apiGroup.PUT("/checklist-items/:id", h.SetChecklistItemHandler)
	}
	return router
}
