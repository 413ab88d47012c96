package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/westrik/parley/internal/conversation"
	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/session"
)

// stateEvent is the SSE payload: everything a front end needs to render
// the countdown and the live transcription strip.
type stateEvent struct {
	MessageCount int                   `json:"messageCount"`
	Idle         idle.State            `json:"idle"`
	UserPreview  *conversation.Preview `json:"userPreview,omitempty"`
	AgentPreview *conversation.Preview `json:"agentPreview,omitempty"`
}

// handleSSE streams engine state at 1 Hz with periodic heartbeats.
func handleSSE(eng *session.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(c.Writer, ": heartbeat\n\n")
				c.Writer.Flush()
			case <-ticker.C:
				ev := stateEvent{
					MessageCount: len(eng.Messages()),
					Idle:         eng.IdleState(),
					UserPreview:  eng.Preview(conversation.SenderUser),
					AgentPreview: eng.Preview(conversation.SenderAgent),
				}
				writeSSE(c.Writer, "state", ev)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes one SSE event frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
