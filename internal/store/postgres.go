package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_project":    `SELECT id, name, description, query_prompt, extraction_prompt, leads_collected, datasets_added, urls_processed, created_at, updated_at FROM projects WHERE id = $1`,
	"insert_lead":    `INSERT INTO serp_leads (project_id, url_id, lead) VALUES ($1, $2, $3)`,
	"update_url":     `UPDATE serp_urls SET status = $1, page_text = $2 WHERE id = $3`,
	"list_queries":   `SELECT id, project_id, query, created_at FROM serp_queries WHERE project_id = $1 ORDER BY id`,
	"count_statuses": `SELECT status, COUNT(*) FROM serp_urls WHERE project_id = $1 GROUP BY status`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems
// that need direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	description       TEXT NOT NULL DEFAULT '',
	query_prompt      TEXT NOT NULL DEFAULT '',
	extraction_prompt TEXT NOT NULL DEFAULT '',
	leads_collected   INTEGER NOT NULL DEFAULT 0,
	datasets_added    INTEGER NOT NULL DEFAULT 0,
	urls_processed    INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS serp_queries (
	id         BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	query      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS serp_urls (
	id         BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	query      TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	link       TEXT NOT NULL UNIQUE,
	snippet    TEXT NOT NULL DEFAULT '',
	page_text  TEXT,
	status     TEXT NOT NULL DEFAULT 'unprocessed'
	           CHECK (status IN ('unprocessed', 'processed', 'skip', 'failed')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS serp_leads (
	id         BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	url_id     BIGINT NOT NULL REFERENCES serp_urls(id) ON DELETE CASCADE,
	lead       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS serp_leads_aggregated (
	id           BIGSERIAL PRIMARY KEY,
	project_id   BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	lead         TEXT NOT NULL,
	source_count INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, lead)
);

CREATE TABLE IF NOT EXISTS project_datasets (
	id                 BIGSERIAL PRIMARY KEY,
	project_id         BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name               TEXT NOT NULL,
	lead_column        TEXT NOT NULL,
	enrichment_columns TEXT[] NOT NULL DEFAULT '{}',
	row_count          INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dataset_rows (
	id               BIGSERIAL PRIMARY KEY,
	dataset_batch_id BIGINT NOT NULL REFERENCES project_datasets(id) ON DELETE CASCADE,
	lead             TEXT NOT NULL,
	enrichment_value TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merged_results (
	id         BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	lead       TEXT NOT NULL,
	serp_leads INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, lead)
);

CREATE TABLE IF NOT EXISTS merged_result_columns (
	id          BIGSERIAL PRIMARY KEY,
	project_id  BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	column_name TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, column_name)
);

CREATE TABLE IF NOT EXISTS merged_result_values (
	merged_result_id BIGINT NOT NULL REFERENCES merged_results(id) ON DELETE CASCADE,
	column_name      TEXT NOT NULL,
	value            TEXT NOT NULL,
	PRIMARY KEY (merged_result_id, column_name)
);

CREATE INDEX IF NOT EXISTS idx_serp_queries_project ON serp_queries(project_id);
CREATE INDEX IF NOT EXISTS idx_serp_urls_project_status ON serp_urls(project_id, status);
CREATE INDEX IF NOT EXISTS idx_serp_leads_project ON serp_leads(project_id);
CREATE INDEX IF NOT EXISTS idx_serp_leads_url ON serp_leads(url_id);
CREATE INDEX IF NOT EXISTS idx_aggregated_project ON serp_leads_aggregated(project_id);
CREATE INDEX IF NOT EXISTS idx_datasets_project ON project_datasets(project_id);
CREATE INDEX IF NOT EXISTS idx_dataset_rows_batch ON dataset_rows(dataset_batch_id);
CREATE INDEX IF NOT EXISTS idx_merged_project_lead ON merged_results(project_id, lead);
CREATE INDEX IF NOT EXISTS idx_merged_serp_order ON merged_results(project_id, serp_leads DESC NULLS LAST, lead ASC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isForeignKeyViolation reports whether err is a Postgres FK violation
// (SQLSTATE 23503), which the store maps to a missing parent record.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// isUniqueViolation reports whether err is a Postgres unique violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const projectColumns = `id, name, description, query_prompt, extraction_prompt, leads_collected, datasets_added, urls_processed, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.QueryPrompt, &p.ExtractionPrompt,
		&p.LeadsCollected, &p.DatasetsAdded, &p.URLsProcessed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description) VALUES ($1, $2) RETURNING `+projectColumns,
		name, description,
	)
	p, err := scanProject(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrProjectNameTaken
		}
		return nil, eris.Wrap(err, "postgres: create project")
	}
	return p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id,
	)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get project %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

func (s *PostgresStore) UpdateProjectPrompts(ctx context.Context, id int64, queryPrompt, extractionPrompt string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET query_prompt = $1, extraction_prompt = $2, updated_at = now() WHERE id = $3`,
		queryPrompt, extractionPrompt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project prompts %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete project %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (s *PostgresStore) RefreshProjectCounters(ctx context.Context, projectID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET
			leads_collected = (SELECT COUNT(*) FROM serp_leads_aggregated WHERE project_id = $1),
			datasets_added  = (SELECT COUNT(*) FROM project_datasets WHERE project_id = $1),
			urls_processed  = (SELECT COUNT(*) FROM serp_urls WHERE project_id = $1 AND status = 'processed'),
			updated_at = now()
		 WHERE id = $1`,
		projectID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: refresh counters %d", projectID)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (s *PostgresStore) AddQueries(ctx context.Context, projectID int64, queries []string) ([]model.Query, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`INSERT INTO serp_queries (project_id, query)
		 SELECT $1, q FROM unnest($2::text[]) AS q
		 RETURNING id, project_id, query, created_at`,
		projectID, queries,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrProjectNotFound
		}
		return nil, eris.Wrapf(err, "postgres: add queries project %d", projectID)
	}
	defer rows.Close()

	var out []model.Query
	for rows.Next() {
		var q model.Query
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.Query, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrProjectNotFound
		}
		return nil, eris.Wrap(err, "postgres: add queries iterate")
	}
	return out, nil
}

func (s *PostgresStore) ListQueries(ctx context.Context, projectID int64) ([]model.Query, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, query, created_at FROM serp_queries WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list queries project %d", projectID)
	}
	defer rows.Close()

	var out []model.Query
	for rows.Next() {
		var q model.Query
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.Query, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list queries iterate")
}

func (s *PostgresStore) ClearQueries(ctx context.Context, projectID int64) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM serp_queries WHERE project_id = $1`, projectID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear queries project %d", projectID)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertCandidateURLs inserts new candidate URLs and refreshes title and
// snippet on link conflicts. The originating query, status and page_text are
// never touched so re-resolving cannot resurrect processed URLs. Callers must
// dedupe links within a batch first.
func (s *PostgresStore) UpsertCandidateURLs(ctx context.Context, projectID int64, urls []model.CandidateURL) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(urls))
	for _, u := range urls {
		rows = append(rows, []any{projectID, u.Query, u.Title, u.Link, u.Snippet, string(model.URLStatusUnprocessed)})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "serp_urls",
		Columns:      []string{"project_id", "query", "title", "link", "snippet", "status"},
		ConflictKeys: []string{"link"},
		UpdateCols:   []string{"title", "snippet"},
	}, rows)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrProjectNotFound
		}
		return 0, eris.Wrapf(err, "postgres: upsert candidate urls project %d", projectID)
	}
	return n, nil
}

const candidateURLColumns = `id, project_id, query, title, link, snippet, page_text, status, created_at`

// ListEligibleURLs returns the project's unprocessed and failed URLs in ID
// order. A limit <= 0 selects every eligible URL.
func (s *PostgresStore) ListEligibleURLs(ctx context.Context, projectID int64, limit int) ([]model.CandidateURL, error) {
	q := `SELECT ` + candidateURLColumns + ` FROM serp_urls
		 WHERE project_id = $1 AND status IN ('unprocessed', 'failed')
		 ORDER BY id`
	args := []any{projectID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list eligible urls project %d", projectID)
	}
	defer rows.Close()

	var out []model.CandidateURL
	for rows.Next() {
		var u model.CandidateURL
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Query, &u.Title, &u.Link, &u.Snippet,
			&u.PageText, &u.Status, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate url")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list eligible urls iterate")
}

// ListProjectURLs returns every candidate URL of the project regardless of
// status. Used by extraction test runs that review all URLs.
func (s *PostgresStore) ListProjectURLs(ctx context.Context, projectID int64) ([]model.CandidateURL, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateURLColumns+` FROM serp_urls WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list urls project %d", projectID)
	}
	defer rows.Close()

	var out []model.CandidateURL
	for rows.Next() {
		var u model.CandidateURL
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Query, &u.Title, &u.Link, &u.Snippet,
			&u.PageText, &u.Status, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate url")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list urls iterate")
}

func (s *PostgresStore) CountURLsByStatus(ctx context.Context, projectID int64) (map[model.URLStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM serp_urls WHERE project_id = $1 GROUP BY status`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count urls project %d", projectID)
	}
	defer rows.Close()

	counts := make(map[model.URLStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url count")
		}
		counts[model.URLStatus(status)] = count
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count urls iterate")
}

// ApplyExtractionOutcomes persists a batch of extraction outcomes in a single
// transaction. Each outcome runs inside a savepoint so one bad URL cannot take
// down the rest of the batch. An outcome that fails is rolled back and its URL
// set to failed so a later run retries it; the IDs of such URLs are returned
// in dropped alongside the number of outcomes applied.
func (s *PostgresStore) ApplyExtractionOutcomes(ctx context.Context, outcomes []URLOutcome) (int, []int64, error) {
	if len(outcomes) == 0 {
		return 0, nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: outcomes begin tx")
	}
	defer tx.Rollback(ctx)

	applied := 0
	var dropped []int64
	for _, o := range outcomes {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return applied, dropped, eris.Wrap(err, "postgres: outcomes savepoint")
		}
		if err := applyOutcome(ctx, sp, o); err != nil {
			sp.Rollback(ctx)
			zap.L().Warn("extraction outcome not persisted",
				zap.Int64("url_id", o.URLID),
				zap.String("status", string(o.Status)),
				zap.Error(err))
			if _, err := tx.Exec(ctx,
				`UPDATE serp_urls SET status = 'failed' WHERE id = $1`, o.URLID,
			); err != nil {
				return applied, dropped, eris.Wrapf(err, "postgres: mark url %d failed", o.URLID)
			}
			dropped = append(dropped, o.URLID)
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return applied, dropped, eris.Wrapf(err, "postgres: outcomes release savepoint url %d", o.URLID)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return applied, dropped, eris.Wrap(err, "postgres: outcomes commit tx")
	}
	return applied, dropped, nil
}

func applyOutcome(ctx context.Context, tx pgx.Tx, o URLOutcome) error {
	tag, err := tx.Exec(ctx,
		`UPDATE serp_urls SET status = $1, page_text = $2 WHERE id = $3`,
		string(o.Status), o.PageText, o.URLID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update url %d", o.URLID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("candidate url not found: %d", o.URLID)
	}
	for _, lead := range o.Leads {
		if _, err := tx.Exec(ctx,
			`INSERT INTO serp_leads (project_id, url_id, lead) VALUES ($1, $2, $3)`,
			o.ProjectID, o.URLID, lead,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert lead for url %d", o.URLID)
		}
	}
	return nil
}

// ResetExtraction returns every URL of a project to unprocessed and deletes
// all extracted and aggregated leads. Fetched page text is dropped with the
// statuses so a re-run starts from a clean slate.
func (s *PostgresStore) ResetExtraction(ctx context.Context, projectID int64) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: reset begin tx")
	}
	defer tx.Rollback(ctx)

	urlTag, err := tx.Exec(ctx,
		`UPDATE serp_urls SET status = 'unprocessed', page_text = NULL
		 WHERE project_id = $1 AND (status <> 'unprocessed' OR page_text IS NOT NULL)`,
		projectID,
	)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: reset urls project %d", projectID)
	}

	leadTag, err := tx.Exec(ctx,
		`DELETE FROM serp_leads WHERE project_id = $1`, projectID,
	)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: reset leads project %d", projectID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM serp_leads_aggregated WHERE project_id = $1`, projectID,
	); err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: reset aggregated project %d", projectID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: reset commit tx")
	}
	return int(urlTag.RowsAffected()), int(leadTag.RowsAffected()), nil
}

func (s *PostgresStore) ListExtractedLeads(ctx context.Context, projectID int64) ([]model.ExtractedLead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, url_id, lead, created_at FROM serp_leads WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list extracted leads project %d", projectID)
	}
	defer rows.Close()

	var out []model.ExtractedLead
	for rows.Next() {
		var l model.ExtractedLead
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.URLID, &l.Lead, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extracted lead")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extracted leads iterate")
}

// ReplaceAggregatedLeads swaps a project's aggregated rollup for a freshly
// computed one in a single transaction.
func (s *PostgresStore) ReplaceAggregatedLeads(ctx context.Context, projectID int64, leads []model.AggregatedLead) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: aggregate begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM serp_leads_aggregated WHERE project_id = $1`, projectID,
	); err != nil {
		return eris.Wrapf(err, "postgres: aggregate clear project %d", projectID)
	}

	if len(leads) > 0 {
		rows := make([][]any, 0, len(leads))
		for _, l := range leads {
			rows = append(rows, []any{projectID, l.Lead, l.SourceCount})
		}
		if _, err := db.CopyFrom(ctx, tx,
			"serp_leads_aggregated",
			[]string{"project_id", "lead", "source_count"},
			rows,
		); err != nil {
			return eris.Wrapf(err, "postgres: aggregate copy project %d", projectID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: aggregate commit tx")
	}
	return nil
}

func (s *PostgresStore) ListAggregatedLeads(ctx context.Context, projectID int64) ([]model.AggregatedLead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, lead, source_count, created_at, updated_at
		 FROM serp_leads_aggregated WHERE project_id = $1
		 ORDER BY source_count DESC, lead ASC`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list aggregated project %d", projectID)
	}
	defer rows.Close()

	var out []model.AggregatedLead
	for rows.Next() {
		var l model.AggregatedLead
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Lead, &l.SourceCount, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan aggregated lead")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list aggregated iterate")
}

// CreateDatasetBatch inserts the batch record and all of its rows in one
// transaction. Either everything lands or nothing does.
func (s *PostgresStore) CreateDatasetBatch(ctx context.Context, batch model.DatasetBatch, rows []model.DatasetRow) (*model.DatasetBatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dataset begin tx")
	}
	defer tx.Rollback(ctx)

	var created model.DatasetBatch
	err = tx.QueryRow(ctx,
		`INSERT INTO project_datasets (project_id, name, lead_column, enrichment_columns, row_count)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, project_id, name, lead_column, enrichment_columns, row_count, created_at`,
		batch.ProjectID, batch.Name, batch.LeadColumn, batch.EnrichmentColumns, len(rows),
	).Scan(&created.ID, &created.ProjectID, &created.Name, &created.LeadColumn,
		&created.EnrichmentColumns, &created.RowCount, &created.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrProjectNotFound
		}
		return nil, eris.Wrap(err, "postgres: insert dataset batch")
	}

	if len(rows) > 0 {
		copyRows := make([][]any, 0, len(rows))
		for _, r := range rows {
			copyRows = append(copyRows, []any{created.ID, r.Lead, r.EnrichmentValue})
		}
		if _, err := db.CopyFrom(ctx, tx,
			"dataset_rows",
			[]string{"dataset_batch_id", "lead", "enrichment_value"},
			copyRows,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: copy dataset rows batch %d", created.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: dataset commit tx")
	}
	return &created, nil
}

func (s *PostgresStore) ListDatasetBatches(ctx context.Context, projectID int64) ([]model.DatasetBatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, lead_column, enrichment_columns, row_count, created_at
		 FROM project_datasets WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list dataset batches project %d", projectID)
	}
	defer rows.Close()

	var out []model.DatasetBatch
	for rows.Next() {
		var b model.DatasetBatch
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.LeadColumn,
			&b.EnrichmentColumns, &b.RowCount, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset batch")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dataset batches iterate")
}

func (s *PostgresStore) ListDatasetRows(ctx context.Context, batchID int64) ([]model.DatasetRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset_batch_id, lead, enrichment_value, created_at
		 FROM dataset_rows WHERE dataset_batch_id = $1 ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list dataset rows batch %d", batchID)
	}
	defer rows.Close()

	var out []model.DatasetRow
	for rows.Next() {
		var r model.DatasetRow
		if err := rows.Scan(&r.ID, &r.DatasetBatchID, &r.Lead, &r.EnrichmentValue, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dataset rows iterate")
}

func (s *PostgresStore) EnsureMergedColumns(ctx context.Context, projectID int64, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO merged_result_columns (project_id, column_name)
		 SELECT $1, c FROM unnest($2::text[]) AS c
		 ON CONFLICT (project_id, column_name) DO NOTHING`,
		projectID, columns,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProjectNotFound
		}
		return eris.Wrapf(err, "postgres: ensure merged columns project %d", projectID)
	}
	return nil
}

func (s *PostgresStore) ListMergedColumns(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM merged_result_columns WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list merged columns project %d", projectID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merged column")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list merged columns iterate")
}

// ResetSerpLeads clears the serp_leads counter on every merged row of a
// project. Run before a SERP merge so leads that fell out of the aggregation
// no longer claim a count.
func (s *PostgresStore) ResetSerpLeads(ctx context.Context, projectID int64) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE merged_results SET serp_leads = NULL, updated_at = now()
		 WHERE project_id = $1 AND serp_leads IS NOT NULL`,
		projectID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reset serp leads project %d", projectID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertSerpMerge(ctx context.Context, projectID int64, leads []model.AggregatedLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(leads))
	counts := make([]int, 0, len(leads))
	for _, l := range leads {
		names = append(names, l.Lead)
		counts = append(counts, l.SourceCount)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO merged_results (project_id, lead, serp_leads)
		 SELECT $1, t.lead, t.cnt FROM unnest($2::text[], $3::int[]) AS t(lead, cnt)
		 ON CONFLICT (project_id, lead)
		 DO UPDATE SET serp_leads = EXCLUDED.serp_leads, updated_at = now()`,
		projectID, names, counts,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrProjectNotFound
		}
		return 0, eris.Wrapf(err, "postgres: serp merge project %d", projectID)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertDatasetMerge writes one enrichment column's values into the merged
// results. Leads not yet present get a base row with a NULL serp count.
func (s *PostgresStore) UpsertDatasetMerge(ctx context.Context, projectID int64, column string, values map[string]string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	leads := make([]string, 0, len(values))
	vals := make([]string, 0, len(values))
	for lead, v := range values {
		leads = append(leads, lead)
		vals = append(vals, v)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: dataset merge begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO merged_results (project_id, lead)
		 SELECT $1, l FROM unnest($2::text[]) AS l
		 ON CONFLICT (project_id, lead) DO NOTHING`,
		projectID, leads,
	); err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrProjectNotFound
		}
		return 0, eris.Wrapf(err, "postgres: dataset merge base rows project %d", projectID)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO merged_result_values (merged_result_id, column_name, value)
		 SELECT mr.id, $3, t.val
		 FROM unnest($2::text[], $4::text[]) AS t(lead, val)
		 JOIN merged_results mr ON mr.project_id = $1 AND mr.lead = t.lead
		 ON CONFLICT (merged_result_id, column_name) DO UPDATE SET value = EXCLUDED.value`,
		projectID, leads, column, vals,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: dataset merge values project %d", projectID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE merged_results SET updated_at = now()
		 WHERE project_id = $1 AND lead = ANY($2::text[])`,
		projectID, leads,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: dataset merge touch project %d", projectID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: dataset merge commit tx")
	}
	return int(tag.RowsAffected()), nil
}

// GetMergedResults returns a page of merged rows ordered by SERP count
// descending with NULLs last, then lead name. Enrichment values for the page
// are loaded in one follow-up query.
func (s *PostgresStore) GetMergedResults(ctx context.Context, projectID int64, filter ResultFilter) ([]model.MergedResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, lead, serp_leads, created_at, updated_at
		 FROM merged_results WHERE project_id = $1
		 ORDER BY serp_leads DESC NULLS LAST, lead ASC
		 LIMIT $2 OFFSET $3`,
		projectID, limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get merged results project %d", projectID)
	}
	defer rows.Close()

	var results []model.MergedResult
	var ids []int64
	byID := make(map[int64]int)
	for rows.Next() {
		var r model.MergedResult
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Lead, &r.SerpLeads, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merged result")
		}
		r.Values = make(map[string]any)
		byID[r.ID] = len(results)
		ids = append(ids, r.ID)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get merged results iterate")
	}
	if len(ids) == 0 {
		return results, nil
	}

	valRows, err := s.pool.Query(ctx,
		`SELECT merged_result_id, column_name, value
		 FROM merged_result_values WHERE merged_result_id = ANY($1::bigint[])`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get merged values project %d", projectID)
	}
	defer valRows.Close()

	for valRows.Next() {
		var id int64
		var column, value string
		if err := valRows.Scan(&id, &column, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merged value")
		}
		if idx, ok := byID[id]; ok {
			results[idx].Values[column] = value
		}
	}
	return results, eris.Wrap(valRows.Err(), "postgres: get merged values iterate")
}
