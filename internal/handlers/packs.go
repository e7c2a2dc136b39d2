package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/services"
	"github.com/veripack/veripack-backend/internal/store"
)

type PacksHandler struct {
	log      *logger.Logger
	store    *store.Store
	schedule services.ScheduleService
}

func NewPacksHandler(log *logger.Logger, st *store.Store, schedule services.ScheduleService) *PacksHandler {
	return &PacksHandler{
		log:      log.With("handler", "PacksHandler"),
		store:    st,
		schedule: schedule,
	}
}

// GET /api/packs
func (h *PacksHandler) ListPacks(c *gin.Context) {
	packs, err := h.store.ListPacks(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"packs": packs})
}

// GET /api/packs/:packId
func (h *PacksHandler) GetPack(c *gin.Context) {
	pack, err := h.store.GetPack(c.Request.Context(), c.Param("packId"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, pack)
}

// DELETE /api/packs/:packId
func (h *PacksHandler) DeletePack(c *gin.Context) {
	deleted, err := h.store.DeletePack(c.Request.Context(), c.Param("packId"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": deleted})
}

// GET /api/packs/:packId/schedule?examDate=YYYY-MM-DD
func (h *PacksHandler) GetSchedule(c *gin.Context) {
	days, err := h.schedule.BuildSchedule(c.Request.Context(), c.Param("packId"), c.Query("examDate"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, gin.H{"schedule": days})
}

// GET /api/packs/:packId/export/csv
func (h *PacksHandler) ExportCSV(c *gin.Context) {
	pack, err := h.store.GetPack(c.Request.Context(), c.Param("packId"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	body, err := services.BuildAnkiCSV(pack)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+pack.ID+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

// GET /api/packs/:packId/export/tsv
func (h *PacksHandler) ExportTSV(c *gin.Context) {
	pack, err := h.store.GetPack(c.Request.Context(), c.Param("packId"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+pack.ID+`.tsv"`)
	c.Data(http.StatusOK, "text/tab-separated-values; charset=utf-8", []byte(services.BuildAnkiTSV(pack)))
}

// GET /api/packs/:packId/export/html
func (h *PacksHandler) ExportHTML(c *gin.Context) {
	pack, err := h.store.GetPack(c.Request.Context(), c.Param("packId"))
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	body, err := services.BuildPackHTML(pack)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}
