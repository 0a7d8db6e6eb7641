package catalog

import (
	"context"
	"fmt"

	"imagegen/internal/models"
)

// GetCostSummary aggregates provider spend across all generations, trashed
// included, optionally floored at a date. Rows without a recorded cost count
// toward the total row count but contribute nothing to the sums.
func (c *Catalog) GetCostSummary(ctx context.Context, since string) (*models.CostSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	floor := "1=1"
	var args []any
	if since != "" {
		floor = "date >= ?"
		args = append(args, since)
	}

	summary := &models.CostSummary{ByModel: []models.ModelCost{}, ByDay: []models.DayCost{}}

	err := c.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(cost_estimate_usd), 0), COUNT(*) FROM generations WHERE "+floor,
		args...).
		Scan(&summary.TotalUSD, &summary.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to total costs: %w", err)
	}

	modelRows, err := c.db.QueryContext(ctx,
		`SELECT model, SUM(cost_estimate_usd) FROM generations
		 WHERE cost_estimate_usd IS NOT NULL AND `+floor+`
		 GROUP BY model ORDER BY SUM(cost_estimate_usd) DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate costs by model: %w", err)
	}
	defer modelRows.Close()
	for modelRows.Next() {
		var mc models.ModelCost
		if err := modelRows.Scan(&mc.Model, &mc.USD); err != nil {
			return nil, err
		}
		summary.ByModel = append(summary.ByModel, mc)
	}
	if err := modelRows.Err(); err != nil {
		return nil, err
	}

	dayRows, err := c.db.QueryContext(ctx,
		`SELECT date, SUM(cost_estimate_usd) FROM generations
		 WHERE cost_estimate_usd IS NOT NULL AND `+floor+`
		 GROUP BY date ORDER BY date DESC LIMIT 30`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate costs by day: %w", err)
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var dc models.DayCost
		if err := dayRows.Scan(&dc.Date, &dc.USD); err != nil {
			return nil, err
		}
		summary.ByDay = append(summary.ByDay, dc)
	}
	return summary, dayRows.Err()
}
