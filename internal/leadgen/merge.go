package leadgen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/normalize"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Merger maintains the per-project merged results table from both sides:
// SERP-derived lead counts and dataset enrichment values.
type Merger struct {
	store store.Store
}

func NewMerger(st store.Store) *Merger {
	return &Merger{store: st}
}

// MergeSerpLeads refreshes the lead rollup and rewrites the serp_leads
// counts on merged results. Counts are reset before repopulating so leads
// that disappeared from the rollup do not keep stale counts. Dataset-only
// rows end up with a NULL count and sort after every SERP-backed row.
func (m *Merger) MergeSerpLeads(ctx context.Context, projectID int64) (*model.MergeResult, error) {
	if _, err := RefreshAggregates(ctx, m.store, projectID); err != nil {
		return nil, eris.Wrap(err, "merge: refresh aggregates")
	}

	leads, err := m.store.ListAggregatedLeads(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "merge: list aggregated leads")
	}

	reset, err := m.store.ResetSerpLeads(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "merge: reset serp counts")
	}

	upserted := 0
	if len(leads) > 0 {
		upserted, err = m.store.UpsertSerpMerge(ctx, projectID, leads)
		if err != nil {
			return nil, eris.Wrap(err, "merge: upsert serp counts")
		}
	}

	zap.L().Info("serp merge complete",
		zap.Int64("project_id", projectID),
		zap.Int("rows_reset", reset),
		zap.Int("rows_upserted", upserted),
	)
	return &model.MergeResult{
		Success:      true,
		RowsUpserted: upserted,
		RowsReset:    reset,
		Message:      fmt.Sprintf("merged %d SERP leads (%d stale counts reset)", upserted, reset),
	}, nil
}

// MergeDatasetLeads folds one dataset batch's enrichment values into the
// merged results. Columns are registered first so the result schema is
// stable even when every row fails validation. Column names must already be
// sanitized; anything else is rejected.
func (m *Merger) MergeDatasetLeads(ctx context.Context, projectID, batchID int64, columns []string) (*model.MergeResult, error) {
	if len(columns) == 0 {
		return nil, eris.New("merge: no enrichment columns")
	}
	for _, col := range columns {
		if sanitized, ok := normalize.SanitizeColumn(col); !ok || sanitized != col {
			return nil, eris.Errorf("merge: invalid column name %q", col)
		}
	}

	if err := m.store.EnsureMergedColumns(ctx, projectID, columns); err != nil {
		return nil, eris.Wrap(err, "merge: register columns")
	}

	rows, err := m.store.ListDatasetRows(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "merge: list dataset rows")
	}

	values := make(map[string]map[string]string, len(columns))
	for _, col := range columns {
		values[col] = make(map[string]string)
	}
	for _, row := range rows {
		lead := normalize.LeadName(row.Lead)
		if lead == "" {
			continue
		}
		if len(columns) == 1 {
			values[columns[0]][lead] = row.EnrichmentValue
			continue
		}
		var cells map[string]any
		if err := json.Unmarshal([]byte(row.EnrichmentValue), &cells); err != nil {
			zap.L().Warn("unreadable enrichment row",
				zap.Int64("batch_id", batchID),
				zap.String("lead", lead),
				zap.Error(err))
			continue
		}
		for _, col := range columns {
			if v, ok := cells[col]; ok {
				values[col][lead] = fmt.Sprint(v)
			}
		}
	}

	upserted := 0
	for _, col := range columns {
		if len(values[col]) == 0 {
			continue
		}
		n, err := m.store.UpsertDatasetMerge(ctx, projectID, col, values[col])
		if err != nil {
			return nil, eris.Wrapf(err, "merge: upsert column %s", col)
		}
		upserted += n
	}

	zap.L().Info("dataset merge complete",
		zap.Int64("project_id", projectID),
		zap.Int64("batch_id", batchID),
		zap.Strings("columns", columns),
		zap.Int("rows_upserted", upserted),
	)
	return &model.MergeResult{
		Success:      true,
		RowsUpserted: upserted,
		Message:      fmt.Sprintf("merged %d enrichment values across %d columns", upserted, len(columns)),
	}, nil
}
