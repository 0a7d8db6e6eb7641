// Package workflow runs the generation lifecycle: record a job, dispatch the
// provider, archive the output and register the result. The catalog lock is
// internal to each catalog call, so nothing here holds it across provider or
// filesystem I/O.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"imagegen/internal/catalog"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/storage/archive"
)

type Orchestrator struct {
	catalog    *catalog.Catalog
	store      *archive.Store
	dispatcher provider.Generator
	logger     *slog.Logger
}

func New(cat *catalog.Catalog, store *archive.Store, dispatcher provider.Generator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{catalog: cat, store: store, dispatcher: dispatcher, logger: logger}
}

// PreparedJob is the recorded intent of one generation request.
type PreparedJob struct {
	JobID       int64
	Provider    models.Provider
	EstimateUSD *float64
	MaxRefs     int
}

// Prepare records the job before any slow work. Unknown models are recorded
// too, with the unknown provider sentinel; dispatch will fail them.
func (o *Orchestrator) Prepare(ctx context.Context, params models.GenerateParams, source models.JobSource) (*PreparedJob, error) {
	jobID, err := o.catalog.CreateJob(ctx, params.Model, params.Prompt, params.Tags, source, int64(len(params.ReferencePaths)))
	if err != nil {
		return nil, err
	}

	pj := &PreparedJob{JobID: jobID, Provider: models.ProviderUnknown}
	if info, ok := models.FindModel(params.Model); ok {
		pj.Provider = info.Provider
		pj.MaxRefs = info.MaxRefs
		if info.CostPerImage > 0 {
			estimate := info.CostPerImage
			pj.EstimateUSD = &estimate
		}
	}
	return pj, nil
}

// Generate runs one request end to end and returns the hydrated generation.
// On any failure after Prepare, the job is marked failed with the cause.
func (o *Orchestrator) Generate(ctx context.Context, params models.GenerateParams, source models.JobSource) (*models.Generation, error) {
	pj, err := o.Prepare(ctx, params, source)
	if err != nil {
		return nil, err
	}

	if pj.Provider == models.ProviderUnknown {
		err := fmt.Errorf("%w: %s", provider.ErrUnknownModel, params.Model)
		o.failJob(ctx, pj.JobID, err)
		return nil, err
	}

	if err := o.catalog.MarkJobRunning(ctx, pj.JobID); err != nil {
		return nil, err
	}

	refs := params.ReferencePaths
	if len(refs) > pj.MaxRefs {
		o.logger.Warn("dropping excess reference images",
			"model", params.Model, "given", len(refs), "max", pj.MaxRefs)
		refs = refs[:pj.MaxRefs]
	}

	start := time.Now()
	result, err := o.dispatcher.Generate(ctx, provider.Request{
		Model:          params.Model,
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Width:          params.Width,
		Height:         params.Height,
		ReferencePaths: refs,
	})
	if err != nil {
		o.failJob(ctx, pj.JobID, err)
		return nil, err
	}
	elapsed := time.Since(start).Seconds()

	gen, err := o.complete(ctx, pj, params, refs, result, elapsed)
	if err != nil {
		o.failJob(ctx, pj.JobID, err)
		return nil, err
	}
	return gen, nil
}

func (o *Orchestrator) complete(ctx context.Context, pj *PreparedJob, params models.GenerateParams, refs []string, result *provider.Result, elapsed float64) (*models.Generation, error) {
	ts := time.Now()
	timestamp := ts.Format(models.TimestampLayout)
	date := ts.Format(models.DateLayout)
	slug := archive.SlugifyPrompt(params.Prompt)

	saved, err := o.store.SaveImage(result.ImageData, date, slug, timestamp)
	if err != nil {
		return nil, err
	}

	// The provider's reported spend beats the registry estimate.
	cost := pj.EstimateUSD
	if result.ActualCostUSD != nil {
		cost = result.ActualCostUSD
	}

	var negative *string
	if params.NegativePrompt != "" {
		negative = &params.NegativePrompt
	}

	genID, err := o.catalog.InsertGeneration(ctx, models.NewGeneration{
		Slug:                  slug,
		Prompt:                params.Prompt,
		Model:                 params.Model,
		Provider:              string(pj.Provider),
		Timestamp:             timestamp,
		Date:                  date,
		ImagePath:             saved.Path,
		ThumbPath:             saved.ThumbPath,
		GenerationTimeSeconds: &elapsed,
		CostEstimateUSD:       cost,
		Seed:                  result.Seed,
		Width:                 &saved.Width,
		Height:                &saved.Height,
		FileSize:              &saved.FileSize,
		ParentID:              params.ParentID,
		NegativePrompt:        negative,
	})
	if err != nil {
		return nil, err
	}

	if len(params.Tags) > 0 {
		if err := o.catalog.AddTags(ctx, genID, params.Tags); err != nil {
			return nil, err
		}
	}

	for _, refPath := range refs {
		hash, storedPath, err := o.store.StoreReference(refPath)
		if err != nil {
			return nil, err
		}
		ref, err := o.catalog.GetOrCreateReference(ctx, hash, storedPath)
		if err != nil {
			return nil, err
		}
		if err := o.catalog.LinkReference(ctx, genID, ref.ID); err != nil {
			return nil, err
		}
	}

	if err := o.catalog.MarkJobCompleted(ctx, pj.JobID, genID); err != nil {
		return nil, err
	}

	if params.CopyTo != "" {
		if err := o.store.CopyTo(saved.Path, params.CopyTo); err != nil {
			o.logger.Warn("failed to copy output", "dest", params.CopyTo, "error", err)
		}
	}

	return o.catalog.GetGeneration(ctx, genID)
}

func (o *Orchestrator) failJob(ctx context.Context, jobID int64, cause error) {
	if err := o.catalog.MarkJobFailed(ctx, jobID, cause.Error()); err != nil {
		o.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}

// Import registers an existing image file without a job or provider call.
func (o *Orchestrator) Import(ctx context.Context, sourcePath, prompt string, tags []string) (*models.Generation, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	if prompt == "" {
		prompt = "imported image"
	}
	ts := time.Now()
	timestamp := ts.Format(models.TimestampLayout)
	date := ts.Format(models.DateLayout)
	slug := archive.SlugifyPrompt(prompt)

	saved, err := o.store.SaveImage(data, date, slug, timestamp)
	if err != nil {
		return nil, err
	}

	genID, err := o.catalog.InsertGeneration(ctx, models.NewGeneration{
		Slug:      slug,
		Prompt:    prompt,
		Model:     "imported",
		Provider:  "import",
		Timestamp: timestamp,
		Date:      date,
		ImagePath: saved.Path,
		ThumbPath: saved.ThumbPath,
		Width:     &saved.Width,
		Height:    &saved.Height,
		FileSize:  &saved.FileSize,
	})
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		if err := o.catalog.AddTags(ctx, genID, tags); err != nil {
			return nil, err
		}
	}
	return o.catalog.GetGeneration(ctx, genID)
}

// Purge hard-deletes a generation and removes its archived assets.
func (o *Orchestrator) Purge(ctx context.Context, id int64) error {
	imagePath, err := o.catalog.PermanentlyDeleteGeneration(ctx, id)
	if err != nil {
		return err
	}
	if err := o.store.DeleteImage(imagePath); err != nil {
		o.logger.Warn("failed to delete archived image", "path", imagePath, "error", err)
	}
	return nil
}
