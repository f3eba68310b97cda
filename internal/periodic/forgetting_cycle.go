package periodic

import (
	"context"
	"fmt"
	"time"

	"github.com/memorybear/memoryengine/internal/forgetting"
	"github.com/memorybear/memoryengine/internal/graphstore"
)

// ForgettingCycleJob runs C5's forgetting.Cycle across every active end
// user, scoped under C11's job-lock contract rather than ad hoc.
type ForgettingCycleJob struct {
	Cycle      *forgetting.Cycle
	Lister     EndUserLister
	Categories []graphstore.Category
	Threshold  float64
}

// Run executes one forgetting cycle per end user with activity since
// since, aggregating each user's forgetting.Report.
func (j *ForgettingCycleJob) Run(ctx context.Context, since time.Time) ([]forgetting.Report, error) {
	ids, err := j.Lister.ListEndUserIDs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("forgetting cycle: list end users: %w", err)
	}

	categories := j.Categories
	if len(categories) == 0 {
		categories = []graphstore.Category{graphstore.CategoryStatement, graphstore.CategoryEntity, graphstore.CategorySummary}
	}

	reports := make([]forgetting.Report, 0, len(ids))
	for _, id := range ids {
		report, err := j.Cycle.Run(ctx, id, categories, j.Threshold)
		if err != nil {
			return reports, fmt.Errorf("forgetting cycle: run for %s: %w", id, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
