package leadgen

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/normalize"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// IngestRequest describes one dataset upload. When ColumnsExist is false the
// file carries no enrichment data and a presence column derived from Name is
// synthesized with the value "true" for every row.
type IngestRequest struct {
	ProjectID         int64
	Name              string
	LeadColumn        string
	EnrichmentColumns []string
	ColumnsExist      bool
	Format            string // "csv" or "xlsx"
	Data              []byte
}

// Ingestor validates and loads uploaded datasets, then folds them into the
// merged results. Validation is all-or-nothing: no rows are written unless
// the whole file passes.
type Ingestor struct {
	store    store.Store
	merger   *Merger
	maxRows  int
	dupLimit int
}

// NewIngestor builds an Ingestor. maxRows caps accepted data rows per file;
// dupLimit caps how many duplicate lead values one error reports.
func NewIngestor(st store.Store, merger *Merger, maxRows, dupLimit int) *Ingestor {
	if maxRows <= 0 {
		maxRows = 100000
	}
	if dupLimit <= 0 {
		dupLimit = 10
	}
	return &Ingestor{store: st, merger: merger, maxRows: maxRows, dupLimit: dupLimit}
}

// Ingest parses, validates, and commits one dataset upload, then merges it
// into the project's results. A merge failure after commit is reported via
// MergeFailed without failing the upload.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*model.IngestResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, eris.New("ingest: dataset name is required")
	}
	if strings.TrimSpace(req.LeadColumn) == "" {
		return nil, eris.New("ingest: lead column is required")
	}

	headers, records, err := parseTable(req.Format, req.Data)
	if err != nil {
		return nil, err
	}
	if len(records) > i.maxRows {
		return nil, eris.Errorf("ingest: file has %d rows, limit is %d", len(records), i.maxRows)
	}

	leadIdx := -1
	leadCol := strings.TrimSpace(req.LeadColumn)
	for idx, h := range headers {
		if h == leadCol {
			leadIdx = idx
			break
		}
	}
	if leadIdx < 0 {
		return nil, eris.Errorf("ingest: lead column %q not found; available columns: %s",
			leadCol, strings.Join(headers, ", "))
	}

	columns, colIdx, err := i.resolveEnrichment(req, headers)
	if err != nil {
		return nil, err
	}

	if dups := findDuplicateLeads(records, leadIdx, i.dupLimit); len(dups) > 0 {
		return nil, eris.Errorf("ingest: duplicate leads in file: %s", strings.Join(dups, ", "))
	}

	rows, skipped := buildDatasetRows(records, leadIdx, columns, colIdx)
	batch := model.DatasetBatch{
		ProjectID:         req.ProjectID,
		Name:              strings.TrimSpace(req.Name),
		LeadColumn:        leadCol,
		EnrichmentColumns: columns,
	}
	created, err := i.store.CreateDatasetBatch(ctx, batch, rows)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: commit batch")
	}

	if err := i.store.RefreshProjectCounters(ctx, req.ProjectID); err != nil {
		zap.L().Warn("counter refresh failed", zap.Error(err))
	}

	result := &model.IngestResult{
		Success:       true,
		BatchID:       created.ID,
		RowsIngested:  len(rows),
		RowsSkipped:   skipped,
		MergedColumns: columns,
		Message:       fmt.Sprintf("ingested %d rows (%d skipped)", len(rows), skipped),
	}

	if _, err := i.merger.MergeDatasetLeads(ctx, req.ProjectID, created.ID, columns); err != nil {
		zap.L().Warn("dataset merge failed after commit",
			zap.Int64("batch_id", created.ID),
			zap.Error(err))
		result.MergeFailed = true
		result.Message += "; merge failed and should be retried"
	}
	return result, nil
}

// resolveEnrichment validates declared enrichment columns against the file
// headers, or synthesizes a presence column when none were declared. Returns
// the column names and their header indexes (empty map for synthesized).
func (i *Ingestor) resolveEnrichment(req IngestRequest, headers []string) ([]string, map[string]int, error) {
	colIdx := make(map[string]int)
	if !req.ColumnsExist {
		derived := normalize.DeriveColumn(strings.TrimSpace(req.Name), "_present")
		if derived == "" {
			return nil, nil, eris.Errorf("ingest: cannot derive a column name from dataset name %q", req.Name)
		}
		return []string{derived}, colIdx, nil
	}

	if len(req.EnrichmentColumns) == 0 {
		return nil, nil, eris.New("ingest: enrichment columns declared as existing but none named")
	}

	headerIdx := make(map[string]int, len(headers))
	for idx, h := range headers {
		headerIdx[h] = idx
	}

	var columns, missing, invalid []string
	for _, raw := range req.EnrichmentColumns {
		col := strings.TrimSpace(raw)
		idx, ok := headerIdx[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		if sanitized, valid := normalize.SanitizeColumn(col); !valid || sanitized != col {
			invalid = append(invalid, col)
			continue
		}
		columns = append(columns, col)
		colIdx[col] = idx
	}
	if len(missing) > 0 {
		return nil, nil, eris.Errorf("ingest: enrichment columns not found in file: %s",
			strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, nil, eris.Errorf("ingest: enrichment column names must match [A-Za-z0-9_]+: %s",
			strings.Join(invalid, ", "))
	}
	return columns, colIdx, nil
}

// findDuplicateLeads reports lead values that repeat within the file after
// trimming and lower-casing, capped at limit. First-seen original casing is
// reported.
func findDuplicateLeads(records [][]string, leadIdx, limit int) []string {
	firstSeen := make(map[string]string)
	reported := make(map[string]struct{})
	var dups []string
	for _, rec := range records {
		raw := strings.TrimSpace(cell(rec, leadIdx))
		if raw == "" {
			continue
		}
		key := strings.ToLower(raw)
		if original, ok := firstSeen[key]; ok {
			if _, done := reported[key]; !done && len(dups) < limit {
				dups = append(dups, original)
				reported[key] = struct{}{}
			}
			continue
		}
		firstSeen[key] = raw
	}
	return dups
}

// buildDatasetRows converts validated records into dataset rows. Rows whose
// lead is empty before or after normalization are skipped, not errors.
func buildDatasetRows(records [][]string, leadIdx int, columns []string, colIdx map[string]int) ([]model.DatasetRow, int) {
	synthesized := len(colIdx) == 0
	rows := make([]model.DatasetRow, 0, len(records))
	skipped := 0
	for _, rec := range records {
		raw := strings.TrimSpace(cell(rec, leadIdx))
		lead := normalize.LeadName(raw)
		if lead == "" {
			skipped++
			continue
		}

		var value string
		switch {
		case synthesized:
			value = "true"
		case len(columns) == 1:
			value = strings.TrimSpace(cell(rec, colIdx[columns[0]]))
		default:
			cells := make(map[string]string, len(columns))
			for _, col := range columns {
				cells[col] = strings.TrimSpace(cell(rec, colIdx[col]))
			}
			encoded, err := json.Marshal(cells)
			if err != nil {
				skipped++
				continue
			}
			value = string(encoded)
		}

		rows = append(rows, model.DatasetRow{Lead: lead, EnrichmentValue: value})
	}
	return rows, skipped
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

// parseTable decodes the upload into trimmed headers plus data records.
func parseTable(format string, data []byte) ([]string, [][]string, error) {
	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv", "":
		table, err = parseCSV(data)
	case "xlsx":
		table, err = parseXLSX(data)
	default:
		return nil, nil, eris.Errorf("ingest: unsupported format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(table) == 0 {
		return nil, nil, eris.New("ingest: file has no header row")
	}

	headers := make([]string, len(table[0]))
	for i, h := range table[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, table[1:], nil
}

// parseCSV reads UTF-8 CSV bytes, tolerating a leading BOM and substituting
// invalid byte sequences rather than failing.
func parseCSV(data []byte) ([][]string, error) {
	decoder := unicode.UTF8.NewDecoder()
	reader := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(decoder))

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var table [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: parse csv")
		}
		table = append(table, rec)
	}
	return table, nil
}

func parseXLSX(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	table := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rec := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			rec[i] = c.String()
		}
		table = append(table, rec)
	}
	return table, nil
}
