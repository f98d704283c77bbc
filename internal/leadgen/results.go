package leadgen

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// utf8BOM makes exported CSVs open cleanly in spreadsheet tools.
const utf8BOM = "\xEF\xBB\xBF"

// Results reads the merged results table, schema included, so callers see
// every registered enrichment column even on rows that never set it.
type Results struct {
	store store.Store

	// pageSize is how many rows ExportCSV reads per store round trip.
	pageSize int
}

func NewResults(st store.Store) *Results {
	return &Results{store: st, pageSize: 1000}
}

// Columns returns the registered enrichment column names for the project,
// in registration order.
func (r *Results) Columns(ctx context.Context, projectID int64) ([]string, error) {
	cols, err := r.store.ListMergedColumns(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "results: list columns")
	}
	return cols, nil
}

// List returns merged results ordered by SERP count descending (rows without
// a count last) then lead ascending. Every registered column is present in
// each row's Values map, nil when unset.
func (r *Results) List(ctx context.Context, projectID int64, filter store.ResultFilter) ([]model.MergedResult, error) {
	cols, err := r.Columns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.GetMergedResults(ctx, projectID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "results: query")
	}
	for i := range rows {
		if rows[i].Values == nil {
			rows[i].Values = make(map[string]any, len(cols))
		}
		for _, col := range cols {
			if _, ok := rows[i].Values[col]; !ok {
				rows[i].Values[col] = nil
			}
		}
	}
	return rows, nil
}

// ExportCSV writes the project's full merged results as UTF-8 CSV with a
// byte-order mark, one column per registered enrichment field. Rows are
// streamed page by page until the table is exhausted.
func (r *Results) ExportCSV(ctx context.Context, projectID int64, w io.Writer) (int, error) {
	cols, err := r.Columns(ctx, projectID)
	if err != nil {
		return 0, err
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, eris.Wrap(err, "results: write bom")
	}

	cw := csv.NewWriter(w)
	header := append([]string{"lead", "serp_leads"}, cols...)
	if err := cw.Write(header); err != nil {
		return 0, eris.Wrap(err, "results: write header")
	}

	total := 0
	for offset := 0; ; offset += r.pageSize {
		rows, err := r.store.GetMergedResults(ctx, projectID, store.ResultFilter{
			Limit:  r.pageSize,
			Offset: offset,
		})
		if err != nil {
			return 0, eris.Wrap(err, "results: query")
		}

		for _, row := range rows {
			rec := make([]string, 0, len(header))
			rec = append(rec, row.Lead)
			if row.SerpLeads != nil {
				rec = append(rec, fmt.Sprintf("%d", *row.SerpLeads))
			} else {
				rec = append(rec, "")
			}
			for _, col := range cols {
				if v, ok := row.Values[col]; ok && v != nil {
					rec = append(rec, fmt.Sprint(v))
				} else {
					rec = append(rec, "")
				}
			}
			if err := cw.Write(rec); err != nil {
				return 0, eris.Wrap(err, "results: write row")
			}
		}

		total += len(rows)
		if len(rows) < r.pageSize {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "results: flush")
	}
	return total, nil
}
