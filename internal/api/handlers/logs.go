package handlers

import (
	"net/http"

	"accesslynx/internal/accesslog"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// LogsHandler serves the persisted access log
type LogsHandler struct {
	path   string
	logger *pterm.Logger
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(path string, logger *pterm.Logger) *LogsHandler {
	return &LogsHandler{
		path:   path,
		logger: logger,
	}
}

// GetLogs returns every well-formed line as {timestamp, message}, oldest first
func (h *LogsHandler) GetLogs(c *gin.Context) {
	entries, err := accesslog.ReadFile(h.path)
	if err != nil {
		h.logger.WithCaller().Error("Failed to read access log", h.logger.Args("path", h.path, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read access log"})
		return
	}

	c.JSON(http.StatusOK, entries)
}
