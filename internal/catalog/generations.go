package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"imagegen/internal/models"
)

const generationColumns = `g.id, g.slug, g.prompt, g.model, g.provider, g.timestamp, g.date,
	g.image_path, g.thumb_path, g.generation_time_seconds, g.cost_estimate_usd,
	g.seed, g.width, g.height, g.file_size, g.parent_id, g.starred, g.created_at,
	g.trashed_at, g.title, g.negative_prompt`

func scanGeneration(row scanner) (*models.Generation, error) {
	var (
		g              models.Generation
		thumbPath      sql.NullString
		genTime        sql.NullFloat64
		cost           sql.NullFloat64
		seed           sql.NullString
		width          sql.NullInt64
		height         sql.NullInt64
		fileSize       sql.NullInt64
		parentID       sql.NullInt64
		starred        int64
		trashedAt      sql.NullString
		title          sql.NullString
		negativePrompt sql.NullString
	)

	err := row.Scan(
		&g.ID, &g.Slug, &g.Prompt, &g.Model, &g.Provider, &g.Timestamp, &g.Date,
		&g.ImagePath, &thumbPath, &genTime, &cost,
		&seed, &width, &height, &fileSize, &parentID, &starred, &g.CreatedAt,
		&trashedAt, &title, &negativePrompt,
	)
	if err != nil {
		return nil, err
	}

	g.ThumbPath = nullToPtr(thumbPath.Valid, thumbPath.String)
	g.GenerationTimeSeconds = nullToPtr(genTime.Valid, genTime.Float64)
	g.CostEstimateUSD = nullToPtr(cost.Valid, cost.Float64)
	g.Seed = nullToPtr(seed.Valid, seed.String)
	g.Width = nullToPtr(width.Valid, width.Int64)
	g.Height = nullToPtr(height.Valid, height.Int64)
	g.FileSize = nullToPtr(fileSize.Valid, fileSize.Int64)
	g.ParentID = nullToPtr(parentID.Valid, parentID.Int64)
	g.Starred = starred != 0
	g.TrashedAt = nullToPtr(trashedAt.Valid, trashedAt.String)
	g.Title = nullToPtr(title.Valid, title.String)
	g.NegativePrompt = nullToPtr(negativePrompt.Valid, negativePrompt.String)
	g.Tags = []string{}
	g.References = []models.Reference{}
	return &g, nil
}

// InsertGeneration creates the immutable core of a Generation and returns
// its id.
func (c *Catalog) InsertGeneration(ctx context.Context, g models.NewGeneration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO generations (slug, prompt, model, provider, timestamp, date, image_path,
			thumb_path, generation_time_seconds, cost_estimate_usd, seed, width, height,
			file_size, parent_id, negative_prompt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Slug, g.Prompt, g.Model, g.Provider, g.Timestamp, g.Date, g.ImagePath,
		g.ThumbPath, g.GenerationTimeSeconds, g.CostEstimateUSD, g.Seed, g.Width, g.Height,
		g.FileSize, g.ParentID, g.NegativePrompt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation: %w", err)
	}
	return res.LastInsertId()
}

// GetGeneration returns a fully hydrated generation (tags and references
// included) or ErrNotFound.
func (c *Catalog) GetGeneration(ctx context.Context, id int64) (*models.Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getGeneration(ctx, id)
}

func (c *Catalog) getGeneration(ctx context.Context, id int64) (*models.Generation, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+generationColumns+" FROM generations g WHERE g.id = ?", id)

	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	if g.Tags, err = c.tagsForGeneration(ctx, id); err != nil {
		return nil, err
	}
	if g.References, err = c.referencesForGeneration(ctx, id); err != nil {
		return nil, err
	}
	return g, nil
}

// ToggleStarred flips the starred flag and returns the new value.
func (c *Catalog) ToggleStarred(ctx context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx,
		"UPDATE generations SET starred = NOT starred WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to toggle starred: %w", err)
	}

	var starred int64
	err := c.db.QueryRowContext(ctx,
		"SELECT starred FROM generations WHERE id = ?", id).Scan(&starred)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return starred != 0, nil
}

func (c *Catalog) UpdatePrompt(ctx context.Context, id int64, prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE generations SET prompt = ? WHERE id = ?", prompt, id)
	return err
}

func (c *Catalog) UpdateTitle(ctx context.Context, id int64, title *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE generations SET title = ? WHERE id = ?", title, id)
	return err
}

func (c *Catalog) UpdateModel(ctx context.Context, id int64, model, provider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE generations SET model = ?, provider = ? WHERE id = ?", model, provider, id)
	return err
}

func (c *Catalog) UpdateThumbPath(ctx context.Context, id int64, thumbPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE generations SET thumb_path = ? WHERE id = ?", thumbPath, id)
	return err
}

// TrashGeneration soft-deletes a generation. Returns false when the row was
// already trashed (or absent): a no-op, not an error.
func (c *Catalog) TrashGeneration(ctx context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"UPDATE generations SET trashed_at = ? WHERE id = ? AND trashed_at IS NULL",
		now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to trash generation: %w", err)
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// TrashGenerations soft-deletes a batch, returning how many rows changed.
func (c *Catalog) TrashGenerations(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, now())
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := c.db.ExecContext(ctx,
		"UPDATE generations SET trashed_at = ? WHERE id IN ("+placeholders(len(ids))+") AND trashed_at IS NULL",
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to trash generations: %w", err)
	}
	return res.RowsAffected()
}

// RestoreGeneration clears the trash marker. Returns false when the row was
// not trashed.
func (c *Catalog) RestoreGeneration(ctx context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"UPDATE generations SET trashed_at = NULL WHERE id = ? AND trashed_at IS NOT NULL", id)
	if err != nil {
		return false, fmt.Errorf("failed to restore generation: %w", err)
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// PermanentlyDeleteGeneration hard-deletes the row (join rows cascade) and
// returns the archived image path so the caller can remove the asset. The
// catalog itself never touches the filesystem.
func (c *Catalog) PermanentlyDeleteGeneration(ctx context.Context, id int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var imagePath string
	err := c.db.QueryRowContext(ctx,
		"SELECT image_path FROM generations WHERE id = ?", id).Scan(&imagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM generations WHERE id = ?", id); err != nil {
		return "", fmt.Errorf("failed to delete generation: %w", err)
	}
	return imagePath, nil
}

// PromptHistoryEntry is a prior prompt with its generation id and timestamp.
type PromptHistoryEntry struct {
	ID        int64  `json:"id"`
	Prompt    string `json:"prompt"`
	Timestamp string `json:"timestamp"`
}

// PromptHistory returns the most recent non-trashed prompts.
func (c *Catalog) PromptHistory(ctx context.Context, limit int64) ([]PromptHistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, prompt, timestamp FROM generations
		 WHERE trashed_at IS NULL
		 ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PromptHistoryEntry
	for rows.Next() {
		var e PromptHistoryEntry
		if err := rows.Scan(&e.ID, &e.Prompt, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
