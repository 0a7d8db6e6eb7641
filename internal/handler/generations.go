package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"imagegen/internal/catalog"
	"imagegen/internal/models"

	"github.com/gin-gonic/gin"
)

// ListGenerations returns a filtered page of generations.
func (h *Handler) ListGenerations(c *gin.Context) {
	filter := models.ListFilter{
		Model:         c.Query("model"),
		Search:        c.Query("search"),
		StarredOnly:   c.Query("starred") == "true",
		ShowTrashed:   c.Query("trashed") == "true",
		Uncategorized: c.Query("uncategorized") == "true",
	}

	if tags := c.Query("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	if exclude := c.Query("exclude_tags"); exclude != "" {
		filter.ExcludeTags = strings.Split(exclude, ",")
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.ParseInt(limit, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = &n
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.ParseInt(offset, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filter.Offset = &n
	}
	if col := c.Query("collection_id"); col != "" {
		n, err := strconv.ParseInt(col, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection_id"})
			return
		}
		filter.CollectionID = &n
	}

	since, err := models.ParseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.Since = since

	generations, err := h.catalog.ListGenerations(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"generations": generations, "count": len(generations)})
}

func (h *Handler) GetGeneration(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	gen, err := h.catalog.GetGeneration(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gen)
}

// ServeImage streams the archived asset; ?thumb=true serves the thumbnail
// when one exists.
func (h *Handler) ServeImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	gen, err := h.catalog.GetGeneration(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	path := gen.ImagePath
	if c.Query("thumb") == "true" && gen.ThumbPath != nil {
		path = *gen.ThumbPath
	}
	c.File(path)
}

type updateGenerationRequest struct {
	Prompt *string `json:"prompt"`
	Title  *string `json:"title"`
	Model  *string `json:"model"`
}

// UpdateGeneration patches the mutable metadata fields.
func (h *Handler) UpdateGeneration(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.Prompt != nil {
		if err := h.catalog.UpdatePrompt(ctx, id, *req.Prompt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Title != nil {
		title := req.Title
		if *title == "" {
			title = nil
		}
		if err := h.catalog.UpdateTitle(ctx, id, title); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Model != nil {
		p, ok := models.ProviderForModel(*req.Model)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown model"})
			return
		}
		if err := h.catalog.UpdateModel(ctx, id, *req.Model, string(p)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	gen, err := h.catalog.GetGeneration(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gen)
}

func (h *Handler) ToggleStar(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	starred, err := h.catalog.ToggleStarred(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "starred": starred})
}

func (h *Handler) TrashGeneration(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	changed, err := h.catalog.TrashGeneration(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "trashed": changed})
}

func (h *Handler) RestoreGeneration(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	changed, err := h.catalog.RestoreGeneration(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "restored": changed})
}

// DeleteGeneration permanently removes the record and its archived assets.
func (h *Handler) DeleteGeneration(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	err := h.orchestrator.Purge(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}
