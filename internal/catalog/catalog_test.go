package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"imagegen/internal/log"
	"imagegen/internal/models"
	"imagegen/pkg/database/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	return New(db, log.NewNop())
}

func ptr[T any](v T) *T { return &v }

func insertTestGeneration(t *testing.T, c *Catalog, mutate func(*models.NewGeneration)) int64 {
	t.Helper()
	g := models.NewGeneration{
		Slug:      "red-fox",
		Prompt:    "a red fox in snow",
		Model:     "gemini-flash",
		Provider:  "gemini",
		Timestamp: "2026-08-29T10:30:45",
		Date:      "2026-08-29",
		ImagePath: "/archive/generations/2026-08-29/red-fox-103045.png",
	}
	if mutate != nil {
		mutate(&g)
	}
	id, err := c.InsertGeneration(context.Background(), g)
	require.NoError(t, err)
	return id
}

func TestInsertAndGetGeneration(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	id := insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.ThumbPath = ptr("/archive/generations/2026-08-29/red-fox-103045.thumb.jpg")
		g.CostEstimateUSD = ptr(0.039)
		g.Width = ptr(int64(1024))
		g.Height = ptr(int64(1024))
		g.NegativePrompt = ptr("blurry")
	})

	got, err := c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a red fox in snow", got.Prompt)
	assert.Equal(t, "gemini-flash", got.Model)
	require.NotNil(t, got.CostEstimateUSD)
	assert.InDelta(t, 0.039, *got.CostEstimateUSD, 1e-9)
	require.NotNil(t, got.Width)
	assert.Equal(t, int64(1024), *got.Width)
	require.NotNil(t, got.NegativePrompt)
	assert.Equal(t, "blurry", *got.NegativePrompt)
	assert.Nil(t, got.Seed)
	assert.Nil(t, got.TrashedAt)
	assert.False(t, got.Starred)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.References)

	_, err = c.GetGeneration(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleStarred(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)

	starred, err := c.ToggleStarred(ctx, id)
	require.NoError(t, err)
	assert.True(t, starred)

	starred, err = c.ToggleStarred(ctx, id)
	require.NoError(t, err)
	assert.False(t, starred)

	_, err = c.ToggleStarred(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrashRestoreLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)

	changed, err := c.TrashGeneration(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)

	// Trashing again is a no-op, not an error.
	changed, err = c.TrashGeneration(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got.TrashedAt)

	changed, err = c.RestoreGeneration(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.RestoreGeneration(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.TrashedAt)
}

func TestTrashGenerationsBatch(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	a := insertTestGeneration(t, c, nil)
	b := insertTestGeneration(t, c, nil)

	n, err := c.TrashGenerations(ctx, []int64{a, b, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.TrashGenerations(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPermanentlyDeleteGeneration(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)
	require.NoError(t, c.AddTags(ctx, id, []string{"fox"}))

	path, err := c.PermanentlyDeleteGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/archive/generations/2026-08-29/red-fox-103045.png", path)

	_, err = c.GetGeneration(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Join rows cascade, so the tag is no longer attached anywhere.
	tags, err := c.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Zero(t, tags[0].Count)

	_, err = c.PermanentlyDeleteGeneration(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFields(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)

	require.NoError(t, c.UpdatePrompt(ctx, id, "an arctic fox"))
	require.NoError(t, c.UpdateTitle(ctx, id, ptr("Fox Study")))
	require.NoError(t, c.UpdateModel(ctx, id, "dall-e-3", "openai"))
	require.NoError(t, c.UpdateThumbPath(ctx, id, "/thumbs/fox.jpg"))

	got, err := c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "an arctic fox", got.Prompt)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Fox Study", *got.Title)
	assert.Equal(t, "dall-e-3", got.Model)
	assert.Equal(t, "openai", got.Provider)
	require.NotNil(t, got.ThumbPath)
	assert.Equal(t, "/thumbs/fox.jpg", *got.ThumbPath)

	require.NoError(t, c.UpdateTitle(ctx, id, nil))
	got, err = c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Title)
}

func TestListGenerationsFilters(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	fox := insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Prompt = "a red fox in snow"
		g.Timestamp = "2026-08-29T10:00:00"
	})
	cat := insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Slug = "a-black-cat"
		g.Prompt = "a black cat"
		g.Model = "dall-e-3"
		g.Provider = "openai"
		g.Timestamp = "2026-08-28T09:00:00"
		g.Date = "2026-08-28"
	})
	trashed := insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Prompt = "discarded draft"
		g.Timestamp = "2026-08-27T08:00:00"
		g.Date = "2026-08-27"
	})

	require.NoError(t, c.AddTags(ctx, fox, []string{"animal", "winter"}))
	require.NoError(t, c.AddTags(ctx, cat, []string{"animal"}))
	_, err := c.ToggleStarred(ctx, fox)
	require.NoError(t, err)
	_, err = c.TrashGeneration(ctx, trashed)
	require.NoError(t, err)

	// Default view: non-trashed, newest first.
	got, err := c.ListGenerations(ctx, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fox, got[0].ID)
	assert.Equal(t, cat, got[1].ID)
	assert.Equal(t, []string{"animal", "winter"}, got[0].Tags)

	// Trash view shows only trashed rows.
	got, err = c.ListGenerations(ctx, models.ListFilter{ShowTrashed: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, trashed, got[0].ID)

	// Tag filter is an AND across all requested tags.
	got, err = c.ListGenerations(ctx, models.ListFilter{Tags: []string{"animal", "winter"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fox, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{Tags: []string{"animal"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Exclusion removes anything carrying the tag.
	got, err = c.ListGenerations(ctx, models.ListFilter{ExcludeTags: []string{"winter"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cat, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{Model: "dall-e-3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cat, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{StarredOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fox, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{Search: "black"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cat, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{Since: "2026-08-29"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fox, got[0].ID)

	got, err = c.ListGenerations(ctx, models.ListFilter{Limit: ptr(int64(1)), Offset: ptr(int64(1))})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cat, got[0].ID)
}

func TestListGenerationsUncategorized(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	collected := insertTestGeneration(t, c, nil)
	loose := insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Timestamp = "2026-08-29T11:00:00"
	})
	col, err := c.CreateCollection(ctx, "keepers", nil)
	require.NoError(t, err)
	require.NoError(t, c.AddToCollection(ctx, collected, col.ID))

	got, err := c.ListGenerations(ctx, models.ListFilter{Uncategorized: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, loose, got[0].ID)
}

func TestTags(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)

	require.NoError(t, c.AddTags(ctx, id, []string{"animal", "winter"}))
	// Re-adding an attached tag is a no-op.
	require.NoError(t, c.AddTags(ctx, id, []string{"animal"}))

	tags, err := c.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "animal", tags[0].Name)
	assert.Equal(t, int64(1), tags[0].Count)

	require.NoError(t, c.RemoveTag(ctx, id, "winter"))
	got, err := c.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"animal"}, got.Tags)

	// The detached tag row survives with a zero count.
	tags, err = c.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "winter", tags[1].Name)
	assert.Zero(t, tags[1].Count)
}

func TestTagCountsExcludeTrashed(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	id := insertTestGeneration(t, c, nil)
	require.NoError(t, c.AddTags(ctx, id, []string{"animal"}))

	_, err := c.TrashGeneration(ctx, id)
	require.NoError(t, err)

	tags, err := c.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Zero(t, tags[0].Count)
}

func TestReferences(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	ref, err := c.GetOrCreateReference(ctx, "abc123", "/archive/references/abc123.png")
	require.NoError(t, err)

	// Same hash returns the existing row, path unchanged.
	again, err := c.GetOrCreateReference(ctx, "abc123", "/elsewhere/abc123.png")
	require.NoError(t, err)
	assert.Equal(t, ref.ID, again.ID)
	assert.Equal(t, "/archive/references/abc123.png", again.Path)

	id := insertTestGeneration(t, c, nil)
	require.NoError(t, c.LinkReference(ctx, id, ref.ID))
	require.NoError(t, c.LinkReference(ctx, id, ref.ID))

	got, err := c.GetGeneration(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.References, 1)
	assert.Equal(t, "abc123", got.References[0].Hash)

	_, err = c.GetReferenceByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollections(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, "favorites", ptr("keepers"))
	require.NoError(t, err)
	assert.Equal(t, "favorites", col.Name)
	require.NotNil(t, col.Description)

	// Names are unique.
	_, err = c.CreateCollection(ctx, "favorites", nil)
	assert.Error(t, err)

	kept := insertTestGeneration(t, c, nil)
	trashed := insertTestGeneration(t, c, nil)
	require.NoError(t, c.AddToCollection(ctx, kept, col.ID))
	require.NoError(t, c.AddToCollection(ctx, trashed, col.ID))
	_, err = c.TrashGeneration(ctx, trashed)
	require.NoError(t, err)

	cols, err := c.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, int64(1), cols[0].Count)

	got, err := c.ListGenerations(ctx, models.ListFilter{CollectionID: &col.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, kept, got[0].ID)

	require.NoError(t, c.RemoveFromCollection(ctx, kept, col.ID))
	got, err = c.ListGenerations(ctx, models.ListFilter{CollectionID: &col.ID})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.DeleteCollection(ctx, col.ID))
	assert.ErrorIs(t, c.DeleteCollection(ctx, col.ID), ErrNotFound)

	// Member generations survive collection deletion.
	_, err = c.GetGeneration(ctx, kept)
	require.NoError(t, err)
}

func TestPromptHistory(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Prompt = "first"
		g.Timestamp = "2026-08-29T09:00:00"
	})
	insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Prompt = "second"
		g.Timestamp = "2026-08-29T10:00:00"
	})

	entries, err := c.PromptHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Prompt)
	assert.Equal(t, "first", entries[1].Prompt)

	entries, err = c.PromptHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetCostSummary(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.CostEstimateUSD = ptr(1.00)
	})
	insertTestGeneration(t, c, func(g *models.NewGeneration) {
		g.Model = "dall-e-3"
		g.Date = "2026-08-28"
		g.Timestamp = "2026-08-28T10:00:00"
		g.CostEstimateUSD = ptr(2.50)
	})
	insertTestGeneration(t, c, nil) // no recorded cost

	summary, err := c.GetCostSummary(ctx, "")
	require.NoError(t, err)
	assert.InDelta(t, 3.50, summary.TotalUSD, 1e-9)
	assert.Equal(t, int64(3), summary.Count)

	require.Len(t, summary.ByModel, 2)
	assert.Equal(t, "dall-e-3", summary.ByModel[0].Model)
	assert.InDelta(t, 2.50, summary.ByModel[0].USD, 1e-9)

	require.Len(t, summary.ByDay, 2)
	assert.Equal(t, "2026-08-29", summary.ByDay[0].Date)

	// A date floor drops earlier days from every aggregate.
	summary, err = c.GetCostSummary(ctx, "2026-08-29")
	require.NoError(t, err)
	assert.InDelta(t, 1.00, summary.TotalUSD, 1e-9)
	assert.Equal(t, int64(2), summary.Count)
	require.Len(t, summary.ByDay, 1)
}
