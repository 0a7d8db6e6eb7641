package handler

import (
	"errors"
	"net/http"

	"imagegen/internal/catalog"

	"github.com/gin-gonic/gin"
)

type createCollectionRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

func (h *Handler) CreateCollection(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	col, err := h.catalog.CreateCollection(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (h *Handler) ListCollections(c *gin.Context) {
	collections, err := h.catalog.ListCollections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (h *Handler) DeleteCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	err := h.catalog.DeleteCollection(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *Handler) AddToCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	gid, ok := idParam(c, "gid")
	if !ok {
		return
	}
	if err := h.catalog.AddToCollection(c.Request.Context(), gid, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection_id": id, "generation_id": gid})
}

func (h *Handler) RemoveFromCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	gid, ok := idParam(c, "gid")
	if !ok {
		return
	}
	if err := h.catalog.RemoveFromCollection(c.Request.Context(), gid, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection_id": id, "generation_id": gid})
}
