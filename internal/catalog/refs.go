package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"imagegen/internal/models"
)

// GetOrCreateReference registers a content-addressed reference image. The
// hash is unique; repeat calls return the existing row.
func (c *Catalog) GetOrCreateReference(ctx context.Context, hash, path string) (*models.Reference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO refs (hash, path, created_at) VALUES (?, ?, ?)",
		hash, path, now()); err != nil {
		return nil, fmt.Errorf("failed to create reference: %w", err)
	}
	return c.referenceByHash(ctx, hash)
}

// GetReferenceByHash looks up a reference by its content hash.
func (c *Catalog) GetReferenceByHash(ctx context.Context, hash string) (*models.Reference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenceByHash(ctx, hash)
}

func (c *Catalog) referenceByHash(ctx context.Context, hash string) (*models.Reference, error) {
	var ref models.Reference
	err := c.db.QueryRowContext(ctx,
		"SELECT id, hash, path, created_at FROM refs WHERE hash = ?", hash).
		Scan(&ref.ID, &ref.Hash, &ref.Path, &ref.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// LinkReference associates a reference with a generation. Linking twice is a
// no-op.
func (c *Catalog) LinkReference(ctx context.Context, generationID, refID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO generation_refs (generation_id, ref_id) VALUES (?, ?)",
		generationID, refID)
	if err != nil {
		return fmt.Errorf("failed to link reference: %w", err)
	}
	return nil
}

func (c *Catalog) referencesForGeneration(ctx context.Context, generationID int64) ([]models.Reference, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT r.id, r.hash, r.path, r.created_at FROM generation_refs gr
		 JOIN refs r ON r.id = gr.ref_id
		 WHERE gr.generation_id = ? ORDER BY r.id`, generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load references: %w", err)
	}
	defer rows.Close()

	refs := []models.Reference{}
	for rows.Next() {
		var ref models.Reference
		if err := rows.Scan(&ref.ID, &ref.Hash, &ref.Path, &ref.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
