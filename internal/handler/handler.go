// Package handler exposes the catalog and orchestrator over HTTP for GUI
// collaborators. The CLI talks to the same code paths in-process.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"imagegen/internal/catalog"
	"imagegen/internal/models"
	"imagegen/internal/storage/archive"
	"imagegen/internal/workflow"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	catalog      *catalog.Catalog
	orchestrator *workflow.Orchestrator
	store        *archive.Store
	logger       *slog.Logger
}

func NewHandler(cat *catalog.Catalog, orch *workflow.Orchestrator, store *archive.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{catalog: cat, orchestrator: orch, store: store, logger: logger}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/models", h.ListModels)

	r.POST("/generate", h.Generate)
	r.POST("/import", h.Import)

	r.GET("/generations", h.ListGenerations)
	r.GET("/generations/:id", h.GetGeneration)
	r.DELETE("/generations/:id", h.DeleteGeneration)
	r.GET("/generations/:id/image", h.ServeImage)
	r.PATCH("/generations/:id", h.UpdateGeneration)
	r.POST("/generations/:id/star", h.ToggleStar)
	r.POST("/generations/:id/trash", h.TrashGeneration)
	r.POST("/generations/:id/restore", h.RestoreGeneration)
	r.POST("/generations/:id/tags", h.AddTags)
	r.DELETE("/generations/:id/tags/:name", h.RemoveTag)

	r.GET("/tags", h.ListTags)
	r.GET("/prompts", h.PromptHistory)
	r.GET("/costs", h.CostSummary)

	r.GET("/collections", h.ListCollections)
	r.POST("/collections", h.CreateCollection)
	r.DELETE("/collections/:id", h.DeleteCollection)
	r.POST("/collections/:id/generations/:gid", h.AddToCollection)
	r.DELETE("/collections/:id/generations/:gid", h.RemoveFromCollection)

	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/cleanup", h.CleanupJobs)

	return r
}

// ListModels returns the static model registry.
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": models.Models()})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
