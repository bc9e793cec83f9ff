package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"accesslynx/internal/accesslog"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// StreamHandler pushes new access log entries to clients via Server-Sent Events
type StreamHandler struct {
	path         string
	pollInterval time.Duration
	logger       *pterm.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(path string, pollInterval time.Duration, logger *pterm.Logger) *StreamHandler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &StreamHandler{
		path:         path,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// StreamLogs tails the access log. With ?from=start the existing entries are
// sent first.
func (h *StreamHandler) StreamLogs(c *gin.Context) {
	fromStart := c.Query("from") == "start"

	tailer := accesslog.NewTailer(h.path, fromStart, h.logger)
	tailer.SetPollInterval(h.pollInterval)

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()

	h.logger.Debug("Client connected to access log stream",
		h.logger.Args("client_ip", c.ClientIP(), "from_start", fromStart))

	err := tailer.Follow(c.Request.Context(), func(entry accesslog.Entry) error {
		data, err := json.Marshal(entry)
		if err != nil {
			h.logger.Error("Failed to marshal entry", h.logger.Args("error", err))
			return nil
		}

		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		h.logger.Debug("Access log stream ended", h.logger.Args("client_ip", c.ClientIP(), "error", err))
		return
	}

	h.logger.Debug("Client disconnected from access log stream",
		h.logger.Args("client_ip", c.ClientIP()))
}
