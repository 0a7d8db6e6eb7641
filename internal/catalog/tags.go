package catalog

import (
	"context"
	"fmt"

	"imagegen/internal/models"
)

func (c *Catalog) getOrCreateTag(ctx context.Context, name string) (int64, error) {
	if _, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("failed to create tag: %w", err)
	}
	var id int64
	if err := c.db.QueryRowContext(ctx,
		"SELECT id FROM tags WHERE name = ?", name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddTags attaches tags to a generation, creating tag rows as needed.
// Already-attached tags are skipped.
func (c *Catalog) AddTags(ctx context.Context, generationID int64, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range tags {
		tagID, err := c.getOrCreateTag(ctx, name)
		if err != nil {
			return err
		}
		if _, err := c.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO generation_tags (generation_id, tag_id) VALUES (?, ?)",
			generationID, tagID); err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
	}
	return nil
}

// RemoveTag detaches a tag from a generation. The tag row itself stays.
func (c *Catalog) RemoveTag(ctx context.Context, generationID int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM generation_tags WHERE generation_id = ?
		 AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		generationID, name)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// ListTags returns every tag with its usage count across non-trashed
// generations, most used first.
func (c *Catalog) ListTags(ctx context.Context) ([]models.TagCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT t.name, COUNT(g.id) FROM tags t
		 LEFT JOIN generation_tags gt ON gt.tag_id = t.id
		 LEFT JOIN generations g ON g.id = gt.generation_id AND g.trashed_at IS NULL
		 GROUP BY t.id
		 ORDER BY COUNT(g.id) DESC, t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

func (c *Catalog) tagsForGeneration(ctx context.Context, generationID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT t.name FROM generation_tags gt
		 JOIN tags t ON t.id = gt.tag_id
		 WHERE gt.generation_id = ? ORDER BY t.name`, generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}
