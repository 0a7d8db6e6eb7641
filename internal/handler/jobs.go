package handler

import (
	"errors"
	"net/http"

	"imagegen/internal/catalog"

	"github.com/gin-gonic/gin"
)

// ListJobs returns active jobs, plus recent failures under ?failed=true.
func (h *Handler) ListJobs(c *gin.Context) {
	if c.Query("failed") == "true" {
		jobs, err := h.catalog.ListRecentFailedJobs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
		return
	}

	jobs, err := h.catalog.ListActiveJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) GetJob(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := h.catalog.GetJob(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// CleanupJobs deletes terminal job rows.
func (h *Handler) CleanupJobs(c *gin.Context) {
	n, err := h.catalog.CleanupOldJobs(c.Request.Context(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
