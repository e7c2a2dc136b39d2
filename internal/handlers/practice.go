package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/services"
)

// PracticeHandler serves the mastery loop: adaptive drills, answer grading
// and remediation plans.
type PracticeHandler struct {
	log         *logger.Logger
	practice    services.PracticeService
	mastery     services.MasteryService
	remediation services.RemediationService
	models      config.ModelsConfig
}

func NewPracticeHandler(
	log *logger.Logger,
	practice services.PracticeService,
	mastery services.MasteryService,
	remediation services.RemediationService,
	models config.ModelsConfig,
) *PracticeHandler {
	return &PracticeHandler{
		log:         log.With("handler", "PracticeHandler"),
		practice:    practice,
		mastery:     mastery,
		remediation: remediation,
		models:      models,
	}
}

// GET /api/practice?packId=...&limit=5
func (h *PracticeHandler) GetPracticeSet(c *gin.Context) {
	packID := c.Query("packId")
	if packID == "" {
		RespondError(c, http.StatusBadRequest, "missing_pack_id", errors.New("packId is required"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	set, err := h.practice.BuildSet(c.Request.Context(), packID, limit)
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, set)
}

type gradeRequest struct {
	PackID     string `json:"packId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// POST /api/grade
func (h *PracticeHandler) Grade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.PackID == "" || req.QuestionID == "" {
		RespondError(c, http.StatusBadRequest, "missing_fields", errors.New("packId and questionId are required"))
		return
	}

	result, err := h.mastery.Grade(c.Request.Context(), req.PackID, req.QuestionID, req.Answer)
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/remediation
func (h *PracticeHandler) Remediation(c *gin.Context) {
	var req services.RemediationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.PackID == "" {
		RespondError(c, http.StatusBadRequest, "missing_pack_id", errors.New("packId is required"))
		return
	}

	items, err := h.remediation.BuildPlan(c.Request.Context(), req, h.models.Flash)
	if err != nil {
		status, code := StatusHTTPError(err)
		RespondError(c, status, code, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}
