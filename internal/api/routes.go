package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/westrik/parley/internal/conversation"
	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/session"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, eng *session.Engine) {
	apiGroup := router.Group("/api")

	apiGroup.GET("/messages", handleMessages(eng))
	apiGroup.POST("/messages", handleSendText(eng))
	apiGroup.GET("/preview", handlePreview(eng))
	apiGroup.POST("/segments", handlePushSegment(eng))
	apiGroup.POST("/clear", handleClear(eng))
	apiGroup.POST("/transcription/stop", handleStopTranscription(eng))

	apiGroup.GET("/idle", handleIdleState(eng))
	apiGroup.POST("/timer/start", handleTimer(eng.StartTimer))
	apiGroup.POST("/timer/reset", handleTimer(eng.ResetTimer))
	apiGroup.POST("/timer/stop", handleTimer(eng.StopTimer))

	apiGroup.GET("/config", handleGetConfig(eng))
	apiGroup.PUT("/config", handleUpdateConfig(eng))

	apiGroup.GET("/events", handleSSE(eng))
}

func handleMessages(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessionId": eng.SessionID(),
			"messages":  eng.Messages(),
		})
	}
}

// sendTextRequest is the POST /api/messages body.
type sendTextRequest struct {
	Content string `json:"content" binding:"required"`
}

func handleSendText(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendTextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}
		if err := eng.AddTextMessage(c.Request.Context(), req.Content); err != nil {
			// Transport failure: the message was not stored.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
	}
}

func handlePreview(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  eng.Preview(conversation.SenderUser),
			"agent": eng.Preview(conversation.SenderAgent),
		})
	}
}

func handlePushSegment(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var seg conversation.Segment
		if err := c.ShouldBindJSON(&seg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed segment"})
			return
		}
		eng.PushSegment(seg)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

func handleClear(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		eng.ClearConversation()
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}

func handleStopTranscription(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		eng.StopTranscription()
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	}
}

func handleIdleState(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.IdleState())
	}
}

func handleTimer(op func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		op()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleGetConfig(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.IdleConfig())
	}
}

func handleUpdateConfig(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg idle.Config
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed config"})
			return
		}
		if verr := eng.UpdateIdleConfig(cfg); verr != nil {
			// Structured validation error for inline rendering.
			c.JSON(http.StatusBadRequest, verr)
			return
		}
		c.JSON(http.StatusOK, eng.IdleConfig())
	}
}
