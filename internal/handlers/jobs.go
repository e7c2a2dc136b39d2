package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/services"
	"github.com/veripack/veripack-backend/internal/types"
)

type GeneratePackRequest struct {
	Input           string                     `json:"input"`
	YouTubeAPIKey   string                     `json:"youtubeApiKey"`
	GeminiAPIKey    string                     `json:"geminiApiKey"`
	ExamDate        string                     `json:"examDate,omitempty"`
	VaultNotes      string                     `json:"vaultNotes,omitempty"`
	VaultDocIDs     []string                   `json:"vaultDocIds,omitempty"`
	ResearchSources []string                   `json:"researchSources,omitempty"`
	ResearchAPIKey  string                     `json:"researchApiKey,omitempty"`
	ResearchQuery   string                     `json:"researchQuery,omitempty"`
	ResumeJobID     string                     `json:"resumeJobId,omitempty"`
	Options         *types.GeneratePackOptions `json:"options,omitempty"`
}

type JobsHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
	models   config.ModelsConfig
}

func NewJobsHandler(log *logger.Logger, pipeline services.PipelineService, models config.ModelsConfig) *JobsHandler {
	return &JobsHandler{
		log:      log.With("handler", "JobsHandler"),
		pipeline: pipeline,
		models:   models,
	}
}

// POST /api/generate-pack
func (h *JobsHandler) GeneratePack(c *gin.Context) {
	var req GeneratePackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Input == "" {
		RespondError(c, http.StatusBadRequest, "missing_input", errors.New("input is required"))
		return
	}
	if req.YouTubeAPIKey == "" || req.GeminiAPIKey == "" {
		RespondError(c, http.StatusBadRequest, "missing_api_key", errors.New("youtubeApiKey and geminiApiKey are required"))
		return
	}

	var options types.GeneratePackOptions
	if req.Options != nil {
		options = *req.Options
	}
	options = services.NormalizeOptions(options)

	job, err := h.pipeline.CreateJob(c.Request.Context(), c.GetString("request_id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_create_failed", err)
		return
	}

	inputs := services.PipelineInputs{
		Input:           req.Input,
		YouTubeAPIKey:   req.YouTubeAPIKey,
		GeminiAPIKey:    req.GeminiAPIKey,
		ProModel:        h.models.Pro,
		FlashModel:      h.models.Flash,
		ExamDate:        req.ExamDate,
		VaultNotes:      req.VaultNotes,
		VaultDocIDs:     req.VaultDocIDs,
		ResearchSources: req.ResearchSources,
		ResearchAPIKey:  req.ResearchAPIKey,
		ResearchQuery:   req.ResearchQuery,
		Options:         options,
		ResumeJobID:     req.ResumeJobID,
	}

	// the run outlives this request
	go h.pipeline.Run(context.Background(), job.ID, inputs)

	h.log.Info("Pack generation started", "jobID", job.ID, "resume", req.ResumeJobID != "")
	RespondOK(c, gin.H{"jobId": job.ID})
}

// StatusHTTPError maps store lookup failures onto status codes.
func StatusHTTPError(err error) (int, string) {
	if errors.Is(err, pkgerr.ErrNotFound) {
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}
