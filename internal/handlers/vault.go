package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/services"
)

// uploads above this size are rejected before extraction
const maxVaultUploadBytes = 25 << 20

type VaultHandler struct {
	log   *logger.Logger
	vault services.VaultService
}

func NewVaultHandler(log *logger.Logger, vault services.VaultService) *VaultHandler {
	return &VaultHandler{
		log:   log.With("handler", "VaultHandler"),
		vault: vault,
	}
}

// POST /api/vault (multipart, one or more "files" parts)
func (h *VaultHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_multipart", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		RespondError(c, http.StatusBadRequest, "no_files", fmt.Errorf("at least one file is required"))
		return
	}

	type docSummary struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Chars int    `json:"chars"`
	}
	docs := make([]docSummary, 0, len(files))

	for _, header := range files {
		if header.Size > maxVaultUploadBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("%s exceeds upload limit", header.Filename))
			return
		}
		f, err := header.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "file_open_failed", err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "file_read_failed", err)
			return
		}

		doc, err := h.vault.AddDoc(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), data)
		if err != nil {
			RespondError(c, http.StatusUnprocessableEntity, "extraction_failed", err)
			return
		}
		docs = append(docs, docSummary{ID: doc.ID, Name: doc.Name, Chars: len(doc.Content)})
	}

	RespondOK(c, gin.H{"docs": docs})
}

// GET /api/vault
func (h *VaultHandler) ListDocs(c *gin.Context) {
	docs, err := h.vault.ListDocs(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	type docSummary struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Chars     int    `json:"chars"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]docSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docSummary{ID: doc.ID, Name: doc.Name, Chars: len(doc.Content), CreatedAt: doc.CreatedAt})
	}
	RespondOK(c, gin.H{"docs": out})
}
