package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
	"github.com/davdis/summarizer-api-sqlite/internal/domain/usecase"
)

type DocumentUseCase interface {
	Submit(ctx context.Context, name, url string) (*entity.Document, error)
	Get(ctx context.Context, documentID string) (*usecase.DocumentView, error)
}

type DocumentHandler struct {
	UseCase DocumentUseCase
}

func NewDocumentHandler(u DocumentUseCase) *DocumentHandler {
	return &DocumentHandler{UseCase: u}
}

type submitRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required,url"`
}

type documentResponse struct {
	DocumentID string                `json:"document_id"`
	Status     entity.DocumentStatus `json:"status"`
	Name       string                `json:"name"`
	URL        string                `json:"url"`
	Summary    *string               `json:"summary"`
	Progress   *float64              `json:"progress"`
	Error      *string               `json:"error,omitempty"`
}

// Submit accepts a document and returns 202; the summarization workflow
// runs after the response is sent.
func (h *DocumentHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid url are required"})
		return
	}

	doc, err := h.UseCase.Submit(c.Request.Context(), req.Name, req.URL)
	if errors.Is(err, usecase.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "document with this name or url already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	zero := 0.0
	c.JSON(http.StatusAccepted, documentResponse{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		Name:       doc.Name,
		URL:        doc.URL,
		Summary:    optional(doc.Summary),
		Progress:   &zero,
	})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	documentID := c.Param("document_id")

	view, err := h.UseCase.Get(c.Request.Context(), documentID)
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	doc := view.Document
	c.JSON(http.StatusOK, documentResponse{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		Name:       doc.Name,
		URL:        doc.URL,
		Summary:    optional(doc.Summary),
		Progress:   view.Progress,
		Error:      optional(doc.Error),
	})
}

func (h *DocumentHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// optional maps empty strings to JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
