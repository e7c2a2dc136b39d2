package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/sse"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

const statusPollInterval = 1500 * time.Millisecond

type StatusHandler struct {
	log   *logger.Logger
	store *store.Store
	hub   *sse.Hub
}

func NewStatusHandler(log *logger.Logger, st *store.Store, hub *sse.Hub) *StatusHandler {
	return &StatusHandler{
		log:   log.With("handler", "StatusHandler"),
		store: st,
		hub:   hub,
	}
}

// GET /api/status/:jobId
func (h *StatusHandler) GetStatus(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, job)
}

// GET /api/status/:jobId/stream
//
// Streams job snapshots as SSE. Hub messages arrive push-style; a poll
// ticker papers over any dropped message. The stream ends after the
// terminal done event.
func (h *StatusHandler) StreamStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := h.hub.Subscribe(jobID)
	defer h.hub.Unsubscribe(client)

	send := func(event string, data any) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	terminal := func(j *types.JobStatus) bool {
		return j.Status == types.JobCompleted || j.Status == types.JobFailed
	}

	send(sse.EventStatus, job)
	if terminal(job) {
		send(sse.EventDone, map[string]string{"status": job.Status, "packId": job.PackID})
		return
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case msg := <-client.Outbound:
			send(msg.Event, msg.Data)
			if msg.Event == sse.EventDone {
				return
			}
		case <-ticker.C:
			job, err := h.store.GetJob(c.Request.Context(), jobID)
			if err != nil {
				h.log.Warn("Status poll failed", "jobID", jobID, "error", err)
				continue
			}
			send(sse.EventStatus, job)
			if terminal(job) {
				send(sse.EventDone, map[string]string{"status": job.Status, "packId": job.PackID})
				return
			}
		}
	}
}
