package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/services"
)

type CoachHandler struct {
	log    *logger.Logger
	coach  services.CoachService
	models config.ModelsConfig
}

func NewCoachHandler(log *logger.Logger, coach services.CoachService, models config.ModelsConfig) *CoachHandler {
	return &CoachHandler{
		log:    log.With("handler", "CoachHandler"),
		coach:  coach,
		models: models,
	}
}

// POST /api/coach
//
// Streams the tutor's reply as SSE message events, then a final session
// event carrying the session id for the next turn.
func (h *CoachHandler) Chat(c *gin.Context) {
	var req services.CoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.PackID == "" || req.Message == "" {
		RespondError(c, http.StatusBadRequest, "missing_fields", errors.New("packId and message are required"))
		return
	}
	if req.APIKey == "" {
		RespondError(c, http.StatusBadRequest, "missing_api_key", errors.New("apiKey is required"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	session, err := h.coach.Respond(c.Request.Context(), req, h.models.Pro, func(chunk string) error {
		c.SSEvent("message", chunk)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		// headers are already out; surface the failure as a stream event
		h.log.Warn("Coach stream failed", "packID", req.PackID, "error", err)
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
		return
	}

	c.SSEvent("session", gin.H{"sessionId": session.ID, "mode": session.Mode})
	c.Writer.Flush()
}
