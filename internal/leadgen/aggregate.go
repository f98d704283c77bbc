package leadgen

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/normalize"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// RefreshAggregates rebuilds the per-project lead rollup from the raw
// extracted leads: one row per normalized name with the count of distinct
// source URLs. The existing rollup is replaced wholesale, so the result is
// always consistent with the raw table. Returns the number of distinct leads.
func RefreshAggregates(ctx context.Context, st store.Store, projectID int64) (int, error) {
	raw, err := st.ListExtractedLeads(ctx, projectID)
	if err != nil {
		return 0, eris.Wrap(err, "aggregate: list extracted leads")
	}

	sources := make(map[string]map[int64]struct{})
	for _, l := range raw {
		name := normalize.LeadName(l.Lead)
		if name == "" {
			continue
		}
		if sources[name] == nil {
			sources[name] = make(map[int64]struct{})
		}
		sources[name][l.URLID] = struct{}{}
	}

	leads := make([]model.AggregatedLead, 0, len(sources))
	for name, urls := range sources {
		leads = append(leads, model.AggregatedLead{
			ProjectID:   projectID,
			Lead:        name,
			SourceCount: len(urls),
		})
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].Lead < leads[j].Lead })

	if err := st.ReplaceAggregatedLeads(ctx, projectID, leads); err != nil {
		return 0, eris.Wrap(err, "aggregate: replace rollup")
	}

	zap.L().Info("aggregates refreshed",
		zap.Int64("project_id", projectID),
		zap.Int("raw_leads", len(raw)),
		zap.Int("distinct_leads", len(leads)),
	)
	return len(leads), nil
}
