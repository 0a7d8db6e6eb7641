package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"imagegen/internal/models"
)

// CreateCollection creates a named collection. Names are unique.
func (c *Catalog) CreateCollection(ctx context.Context, name string, description *string) (*models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"INSERT INTO collections (name, description, created_at) VALUES (?, ?, ?)",
		name, description, now())
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return c.collectionByID(ctx, id)
}

// ListCollections returns all collections with counts of their non-trashed
// members.
func (c *Catalog) ListCollections(ctx context.Context) ([]models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT col.id, col.name, col.description, col.created_at, COUNT(g.id)
		 FROM collections col
		 LEFT JOIN generation_collections gc ON gc.collection_id = col.id
		 LEFT JOIN generations g ON g.id = gc.generation_id AND g.trashed_at IS NULL
		 GROUP BY col.id
		 ORDER BY col.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	collections := []models.Collection{}
	for rows.Next() {
		var (
			col  models.Collection
			desc sql.NullString
		)
		if err := rows.Scan(&col.ID, &col.Name, &desc, &col.CreatedAt, &col.Count); err != nil {
			return nil, err
		}
		col.Description = nullToPtr(desc.Valid, desc.String)
		collections = append(collections, col)
	}
	return collections, rows.Err()
}

func (c *Catalog) collectionByID(ctx context.Context, id int64) (*models.Collection, error) {
	var (
		col  models.Collection
		desc sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM collections WHERE id = ?", id).
		Scan(&col.ID, &col.Name, &desc, &col.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	col.Description = nullToPtr(desc.Valid, desc.String)
	return &col, nil
}

// AddToCollection places a generation in a collection. Re-adding is a no-op.
func (c *Catalog) AddToCollection(ctx context.Context, generationID, collectionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO generation_collections (generation_id, collection_id) VALUES (?, ?)",
		generationID, collectionID)
	if err != nil {
		return fmt.Errorf("failed to add to collection: %w", err)
	}
	return nil
}

// RemoveFromCollection removes a generation from a collection.
func (c *Catalog) RemoveFromCollection(ctx context.Context, generationID, collectionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM generation_collections WHERE generation_id = ? AND collection_id = ?",
		generationID, collectionID)
	if err != nil {
		return fmt.Errorf("failed to remove from collection: %w", err)
	}
	return nil
}

// DeleteCollection removes the collection and its membership rows. Member
// generations are untouched.
func (c *Catalog) DeleteCollection(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
