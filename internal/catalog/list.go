package catalog

import (
	"context"
	"fmt"
	"strings"

	"imagegen/internal/models"
)

// ListGenerations returns hydrated generations matching the filter, newest
// first. Trashed rows are excluded unless the filter asks for the trash view.
func (c *Catalog) ListGenerations(ctx context.Context, filter models.ListFilter) ([]*models.Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		conditions []string
		args       []any
	)

	if filter.ShowTrashed {
		conditions = append(conditions, "g.trashed_at IS NOT NULL")
	} else {
		conditions = append(conditions, "g.trashed_at IS NULL")
	}

	if filter.CollectionID != nil {
		conditions = append(conditions,
			"g.id IN (SELECT generation_id FROM generation_collections WHERE collection_id = ?)")
		args = append(args, *filter.CollectionID)
	}

	if filter.Uncategorized {
		conditions = append(conditions, "g.id NOT IN (SELECT generation_id FROM generation_collections)")
	}

	if len(filter.Tags) > 0 {
		// A row qualifies only when it carries every requested tag.
		conditions = append(conditions, fmt.Sprintf(
			`g.id IN (SELECT gt.generation_id FROM generation_tags gt
				JOIN tags t ON t.id = gt.tag_id
				WHERE t.name IN (%s)
				GROUP BY gt.generation_id
				HAVING COUNT(DISTINCT t.name) = ?)`, placeholders(len(filter.Tags))))
		for _, tag := range filter.Tags {
			args = append(args, tag)
		}
		args = append(args, len(filter.Tags))
	}

	if len(filter.ExcludeTags) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			`g.id NOT IN (SELECT gt.generation_id FROM generation_tags gt
				JOIN tags t ON t.id = gt.tag_id
				WHERE t.name IN (%s))`, placeholders(len(filter.ExcludeTags))))
		for _, tag := range filter.ExcludeTags {
			args = append(args, tag)
		}
	}

	if filter.Model != "" {
		conditions = append(conditions, "g.model = ?")
		args = append(args, filter.Model)
	}

	if filter.StarredOnly {
		conditions = append(conditions, "g.starred = 1")
	}

	if filter.Search != "" {
		conditions = append(conditions, "(g.prompt LIKE ? OR g.title LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	if filter.Since != "" {
		conditions = append(conditions, "g.timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := "SELECT " + generationColumns + " FROM generations g WHERE " +
		strings.Join(conditions, " AND ") +
		" ORDER BY g.timestamp DESC, g.id DESC"

	if filter.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *filter.Limit)
	} else if filter.Offset != nil {
		// sqlite requires LIMIT before OFFSET; -1 means unbounded.
		query += " LIMIT -1"
	}
	if filter.Offset != nil {
		query += " OFFSET ?"
		args = append(args, *filter.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	generations := []*models.Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		generations = append(generations, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := c.hydrateBatch(ctx, generations); err != nil {
		return nil, err
	}
	return generations, nil
}

// hydrateBatch fills Tags and References for a page of generations with two
// queries instead of 2N.
func (c *Catalog) hydrateBatch(ctx context.Context, generations []*models.Generation) error {
	if len(generations) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Generation, len(generations))
	args := make([]any, 0, len(generations))
	for _, g := range generations {
		byID[g.ID] = g
		args = append(args, g.ID)
	}
	in := placeholders(len(generations))

	tagRows, err := c.db.QueryContext(ctx,
		`SELECT gt.generation_id, t.name FROM generation_tags gt
		 JOIN tags t ON t.id = gt.tag_id
		 WHERE gt.generation_id IN (`+in+`) ORDER BY t.name`, args...)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			genID int64
			name  string
		)
		if err := tagRows.Scan(&genID, &name); err != nil {
			return err
		}
		if g := byID[genID]; g != nil {
			g.Tags = append(g.Tags, name)
		}
	}
	if err := tagRows.Err(); err != nil {
		return err
	}

	refRows, err := c.db.QueryContext(ctx,
		`SELECT gr.generation_id, r.id, r.hash, r.path, r.created_at FROM generation_refs gr
		 JOIN refs r ON r.id = gr.ref_id
		 WHERE gr.generation_id IN (`+in+`) ORDER BY r.id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load references: %w", err)
	}
	defer refRows.Close()
	for refRows.Next() {
		var (
			genID int64
			ref   models.Reference
		)
		if err := refRows.Scan(&genID, &ref.ID, &ref.Hash, &ref.Path, &ref.CreatedAt); err != nil {
			return err
		}
		if g := byID[genID]; g != nil {
			g.References = append(g.References, ref)
		}
	}
	return refRows.Err()
}
