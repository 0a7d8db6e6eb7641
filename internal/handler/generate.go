package handler

import (
	"errors"
	"net/http"

	"imagegen/internal/models"
	"imagegen/internal/provider"

	"github.com/gin-gonic/gin"
)

type generateRequest struct {
	Prompt         string   `json:"prompt" binding:"required"`
	Model          string   `json:"model" binding:"required"`
	Tags           []string `json:"tags"`
	ReferencePaths []string `json:"reference_paths"`
	NegativePrompt string   `json:"negative_prompt"`
	AspectRatio    string   `json:"aspect_ratio"`
	Width          *int64   `json:"width"`
	Height         *int64   `json:"height"`
	ParentID       *int64   `json:"parent_id"`
	CopyTo         string   `json:"copy_to"`
}

// Generate runs a generation synchronously and returns the stored result.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := models.GenerateParams{
		Prompt:         req.Prompt,
		Model:          req.Model,
		Tags:           req.Tags,
		ReferencePaths: req.ReferencePaths,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		ParentID:       req.ParentID,
		CopyTo:         req.CopyTo,
	}
	if req.AspectRatio != "" {
		w, ht, ok := models.ResolveAspectRatio(req.AspectRatio)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown aspect ratio"})
			return
		}
		params.Width, params.Height = &w, &ht
	}

	gen, err := h.orchestrator.Generate(c.Request.Context(), params, models.JobSourceGUI)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, provider.ErrUnknownModel) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gen)
}

type importRequest struct {
	Path   string   `json:"path" binding:"required"`
	Prompt string   `json:"prompt"`
	Tags   []string `json:"tags"`
}

// Import registers an existing local image file.
func (h *Handler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gen, err := h.orchestrator.Import(c.Request.Context(), req.Path, req.Prompt, req.Tags)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gen)
}
