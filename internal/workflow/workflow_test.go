package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"imagegen/internal/catalog"
	"imagegen/internal/log"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/storage/archive"
	"imagegen/pkg/database/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	lastReq provider.Request
	result  *provider.Result
	err     error
}

func (s *stubGenerator) Generate(_ context.Context, req provider.Request) (*provider.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24))))
	return buf.Bytes()
}

func newTestOrchestrator(t *testing.T, stub *stubGenerator) (*Orchestrator, *catalog.Catalog) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	cat := catalog.New(db, log.NewNop())
	store := archive.New(t.TempDir(), log.NewNop())
	require.NoError(t, store.EnsureDirs())
	return New(cat, store, stub, log.NewNop()), cat
}

func TestGenerateSuccess(t *testing.T) {
	seed := "42"
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t), Seed: &seed}}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	gen, err := o.Generate(ctx, models.GenerateParams{
		Prompt: "a red fox in snow",
		Model:  "gemini-flash",
		Tags:   []string{"animal", "winter"},
	}, models.JobSourceCLI)
	require.NoError(t, err)

	assert.Equal(t, "a-red-fox-in", gen.Slug[:12])
	assert.Equal(t, "gemini-flash", gen.Model)
	assert.Equal(t, "gemini", gen.Provider)
	assert.Equal(t, []string{"animal", "winter"}, gen.Tags)
	assert.FileExists(t, gen.ImagePath)
	require.NotNil(t, gen.Seed)
	assert.Equal(t, "42", *gen.Seed)
	require.NotNil(t, gen.Width)
	assert.Equal(t, int64(32), *gen.Width)

	// No reported spend, so the registry estimate is recorded.
	require.NotNil(t, gen.CostEstimateUSD)
	assert.InDelta(t, 0.039, *gen.CostEstimateUSD, 1e-9)
	require.NotNil(t, gen.GenerationTimeSeconds)

	jobs, err := cat.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	job, err := cat.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.GenerationID)
	assert.Equal(t, gen.ID, *job.GenerationID)
}

func TestGenerateActualCostWins(t *testing.T) {
	actual := 0.0123
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t), ActualCostUSD: &actual}}
	o, _ := newTestOrchestrator(t, stub)

	gen, err := o.Generate(context.Background(), models.GenerateParams{
		Prompt: "p", Model: "gemini-flash",
	}, models.JobSourceGUI)
	require.NoError(t, err)
	require.NotNil(t, gen.CostEstimateUSD)
	assert.InDelta(t, actual, *gen.CostEstimateUSD, 1e-9)
}

func TestGenerateReferencesStoredAndLinked(t *testing.T) {
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t)}}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	refData := pngBytes(t)
	refPath := filepath.Join(t.TempDir(), "ref.png")
	require.NoError(t, os.WriteFile(refPath, refData, 0640))

	gen, err := o.Generate(ctx, models.GenerateParams{
		Prompt:         "p",
		Model:          "gemini-flash",
		ReferencePaths: []string{refPath},
	}, models.JobSourceCLI)
	require.NoError(t, err)

	require.Len(t, gen.References, 1)
	assert.Equal(t, archive.HashBytes(refData), gen.References[0].Hash)
	assert.FileExists(t, gen.References[0].Path)
	assert.Equal(t, []string{refPath}, stub.lastReq.ReferencePaths)

	// A second run with the same reference reuses the stored copy.
	gen2, err := o.Generate(ctx, models.GenerateParams{
		Prompt:         "q",
		Model:          "gemini-flash",
		ReferencePaths: []string{refPath},
	}, models.JobSourceCLI)
	require.NoError(t, err)
	require.Len(t, gen2.References, 1)
	assert.Equal(t, gen.References[0].ID, gen2.References[0].ID)

	ref, err := cat.GetReferenceByHash(ctx, gen.References[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, gen.References[0].Path, ref.Path)
}

func TestGenerateCapsReferencesAtModelLimit(t *testing.T) {
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t)}}
	o, _ := newTestOrchestrator(t, stub)

	refPath := filepath.Join(t.TempDir(), "ref.png")
	require.NoError(t, os.WriteFile(refPath, pngBytes(t), 0640))
	other := filepath.Join(t.TempDir(), "other.png")
	require.NoError(t, os.WriteFile(other, pngBytes(t), 0640))

	// animagine accepts a single reference.
	_, err := o.Generate(context.Background(), models.GenerateParams{
		Prompt:         "p",
		Model:          "animagine",
		ReferencePaths: []string{refPath, other},
	}, models.JobSourceCLI)
	require.NoError(t, err)
	assert.Len(t, stub.lastReq.ReferencePaths, 1)
}

func TestGenerateUnknownModel(t *testing.T) {
	stub := &stubGenerator{}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerateParams{
		Prompt: "p", Model: "not-a-model",
	}, models.JobSourceCLI)
	assert.ErrorIs(t, err, provider.ErrUnknownModel)

	// The job is still recorded, then failed.
	job, err := cat.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "not-a-model")
}

func TestGenerateProviderFailure(t *testing.T) {
	stub := &stubGenerator{err: errors.New("upstream unavailable")}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerateParams{
		Prompt: "p", Model: "gemini-flash",
	}, models.JobSourceCLI)
	require.Error(t, err)

	job, err := cat.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "upstream unavailable", *job.Error)

	gens, err := cat.ListGenerations(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestGenerateArchiveFailureFailsJob(t *testing.T) {
	stub := &stubGenerator{result: &provider.Result{ImageData: []byte("not an image")}}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerateParams{
		Prompt: "p", Model: "gemini-flash",
	}, models.JobSourceCLI)
	require.Error(t, err)

	job, err := cat.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestGenerateCopyTo(t *testing.T) {
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t)}}
	o, _ := newTestOrchestrator(t, stub)

	dest := filepath.Join(t.TempDir(), "out", "copy.png")
	_, err := o.Generate(context.Background(), models.GenerateParams{
		Prompt: "p", Model: "gemini-flash", CopyTo: dest,
	}, models.JobSourceCLI)
	require.NoError(t, err)
	assert.FileExists(t, dest)
}

func TestImport(t *testing.T) {
	o, cat := newTestOrchestrator(t, &stubGenerator{})
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(src, pngBytes(t), 0640))

	gen, err := o.Import(ctx, src, "holiday photo", []string{"holiday"})
	require.NoError(t, err)
	assert.Equal(t, "imported", gen.Model)
	assert.Equal(t, "import", gen.Provider)
	assert.Equal(t, []string{"holiday"}, gen.Tags)
	assert.FileExists(t, gen.ImagePath)

	// No job is recorded for imports.
	jobs, err := cat.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	_, err = cat.GetJob(ctx, 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestPurge(t *testing.T) {
	stub := &stubGenerator{result: &provider.Result{ImageData: pngBytes(t)}}
	o, cat := newTestOrchestrator(t, stub)
	ctx := context.Background()

	gen, err := o.Generate(ctx, models.GenerateParams{
		Prompt: "p", Model: "gemini-flash",
	}, models.JobSourceCLI)
	require.NoError(t, err)

	require.NoError(t, o.Purge(ctx, gen.ID))
	assert.NoFileExists(t, gen.ImagePath)
	_, err = cat.GetGeneration(ctx, gen.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	assert.ErrorIs(t, o.Purge(ctx, gen.ID), catalog.ErrNotFound)
}
