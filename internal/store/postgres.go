package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-monitor/internal/db"
	"github.com/sells-group/edgar-monitor/internal/model"
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
// faster execution of the hot-path queue and status operations.
var preparedStatements = map[string]string{
	"get_filing":    `SELECT ` + filingColumns + ` FROM filings WHERE accession_number = $1`,
	"complete_task": `DELETE FROM tasks WHERE id = $1`,
	"release_task":  `UPDATE tasks SET claimed_at = NULL, next_attempt_at = $1 WHERE id = $2`,
	"record_view":   `INSERT INTO filing_views (id, user_id, accession_number, viewed_at) VALUES ($1, $2, $3, $4)`,
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

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	cik            TEXT PRIMARY KEY,
	ticker         TEXT,
	name           TEXT NOT NULL,
	exchange       TEXT,
	is_sp500       BOOLEAN NOT NULL DEFAULT false,
	is_nasdaq100   BOOLEAN NOT NULL DEFAULT false,
	is_active      BOOLEAN NOT NULL DEFAULT true,
	last_filing_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_ticker ON companies(ticker);
CREATE INDEX IF NOT EXISTS idx_companies_monitored ON companies(is_active, is_sp500, is_nasdaq100);

CREATE TABLE IF NOT EXISTS filings (
	accession_number    TEXT PRIMARY KEY,
	cik                 TEXT NOT NULL,
	ticker              TEXT,
	company_name        TEXT,
	form_type           TEXT NOT NULL,
	filed_at            TIMESTAMPTZ NOT NULL,
	index_url           TEXT,
	primary_doc_url     TEXT,
	local_path          TEXT,
	status              TEXT NOT NULL DEFAULT 'discovered',
	error_message       TEXT,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	next_retry_at       TIMESTAMPTZ,
	analysis            JSONB,
	bullish_votes       INTEGER NOT NULL DEFAULT 0,
	neutral_votes       INTEGER NOT NULL DEFAULT 0,
	bearish_votes       INTEGER NOT NULL DEFAULT 0,
	comment_count       INTEGER NOT NULL DEFAULT 0,
	view_count          INTEGER NOT NULL DEFAULT 0,
	discovered_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	download_started_at TIMESTAMPTZ,
	downloaded_at       TIMESTAMPTZ,
	ai_started_at       TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);
CREATE INDEX IF NOT EXISTS idx_filings_form_type ON filings(form_type);
CREATE INDEX IF NOT EXISTS idx_filings_ticker ON filings(ticker);
CREATE INDEX IF NOT EXISTS idx_filings_filed_at ON filings(filed_at DESC);
CREATE INDEX IF NOT EXISTS idx_filings_retry ON filings(status, next_retry_at);

CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	stage            TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	max_attempts     INTEGER NOT NULL DEFAULT 3,
	next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	claimed_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (accession_number, stage)
);

CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(stage, next_attempt_at);

CREATE TABLE IF NOT EXISTS filing_votes (
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	user_id          TEXT NOT NULL,
	sentiment        TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (accession_number, user_id)
);

CREATE TABLE IF NOT EXISTS filing_comments (
	id               TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	user_id          TEXT NOT NULL,
	body             TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_comments_accession ON filing_comments(accession_number, created_at DESC);

CREATE TABLE IF NOT EXISTS watchlist (
	user_id    TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, ticker)
);

CREATE TABLE IF NOT EXISTS filing_views (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	accession_number TEXT NOT NULL,
	viewed_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_views_user_time ON filing_views(user_id, viewed_at);
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

const filingColumns = `accession_number, cik, ticker, company_name, form_type, filed_at,
	index_url, primary_doc_url, local_path, status, error_message,
	retry_count, next_retry_at, analysis,
	bullish_votes, neutral_votes, bearish_votes, comment_count, view_count,
	discovered_at, download_started_at, downloaded_at, ai_started_at, completed_at`

// InsertFilingIfNew persists a discovered filing and enqueues its download
// task in one transaction. The accession-number primary key makes the
// duplicate check atomic with the enqueue: under concurrent scans exactly
// one inserter wins and only that one enqueues.
func (s *PostgresStore) InsertFilingIfNew(ctx context.Context, f *model.Filing) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin insert filing")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	discoveredAt := f.DiscoveredAt
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO filings (accession_number, cik, ticker, company_name, form_type, filed_at, index_url, status, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (accession_number) DO NOTHING`,
		f.AccessionNumber, f.CIK, f.Ticker, f.CompanyName, string(f.FormType),
		f.FiledAt, f.IndexURL, string(model.StatusDiscovered), discoveredAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert filing %s", f.AccessionNumber)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (accession_number, stage) DO NOTHING`,
		uuid.New().String(), f.AccessionNumber, string(model.StageDownload), 3, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: enqueue download for %s", f.AccessionNumber)
	}

	_, err = tx.Exec(ctx,
		`UPDATE companies SET last_filing_at = $1 WHERE cik = $2 AND (last_filing_at IS NULL OR last_filing_at < $1)`,
		f.FiledAt, f.CIK,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: bump company last filing %s", f.CIK)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit insert filing")
	}
	return true, nil
}

func scanFiling(row pgx.Row) (*model.Filing, error) {
	var f model.Filing
	var formType, status string
	var ticker, companyName, indexURL, primaryDocURL, localPath, errMsg *string
	var analysisJSON []byte

	err := row.Scan(
		&f.AccessionNumber, &f.CIK, &ticker, &companyName, &formType, &f.FiledAt,
		&indexURL, &primaryDocURL, &localPath, &status, &errMsg,
		&f.RetryCount, &f.NextRetryAt, &analysisJSON,
		&f.BullishVotes, &f.NeutralVotes, &f.BearishVotes, &f.CommentCount, &f.ViewCount,
		&f.DiscoveredAt, &f.DownloadStartedAt, &f.DownloadedAt, &f.AIStartedAt, &f.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	f.FormType = model.FormType(formType)
	f.Status = model.FilingStatus(status)
	if ticker != nil {
		f.Ticker = *ticker
	}
	if companyName != nil {
		f.CompanyName = *companyName
	}
	if indexURL != nil {
		f.IndexURL = *indexURL
	}
	if primaryDocURL != nil {
		f.PrimaryDocURL = *primaryDocURL
	}
	if localPath != nil {
		f.LocalPath = *localPath
	}
	if errMsg != nil {
		f.ErrorMessage = *errMsg
	}
	if len(analysisJSON) > 0 {
		f.Analysis = &model.Analysis{}
		if err := json.Unmarshal(analysisJSON, f.Analysis); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis")
		}
	}
	return &f, nil
}

// GetFiling returns (nil, nil) when the accession number is unknown.
func (s *PostgresStore) GetFiling(ctx context.Context, accession string) (*model.Filing, error) {
	f, err := scanFiling(s.pool.QueryRow(ctx,
		`SELECT `+filingColumns+` FROM filings WHERE accession_number = $1`,
		accession,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get filing %s", accession)
	}
	return f, nil
}

func (s *PostgresStore) ListFilings(ctx context.Context, filter FilingFilter) ([]model.Filing, error) {
	query := `SELECT ` + filingColumns + ` FROM filings WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.FormType != "" {
		query += fmt.Sprintf(` AND form_type = $%d`, argIdx)
		args = append(args, string(filter.FormType))
		argIdx++
	}
	if filter.Ticker != "" {
		query += fmt.Sprintf(` AND ticker = $%d`, argIdx)
		args = append(args, filter.Ticker)
		argIdx++
	}
	if filter.CIK != "" {
		query += fmt.Sprintf(` AND cik = $%d`, argIdx)
		args = append(args, filter.CIK)
		argIdx++
	}
	query += ` ORDER BY filed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filings")
	}
	defer rows.Close()

	var filings []model.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan filing")
		}
		filings = append(filings, *f)
	}
	return filings, eris.Wrap(rows.Err(), "postgres: list filings iterate")
}

// stageTimestampCol maps a target status to the timestamp column recorded on
// entering it.
func stageTimestampCol(to model.FilingStatus) string {
	switch to {
	case model.StatusDownloading:
		return "download_started_at"
	case model.StatusDownloaded:
		return "downloaded_at"
	case model.StatusAIProcessing:
		return "ai_started_at"
	case model.StatusCompleted:
		return "completed_at"
	default:
		return ""
	}
}

// TransitionFiling is a compare-and-set on the status column. A transition
// whose from-status no longer matches returns ErrWrongStatus, which makes
// stage ownership race-free without row locks.
func (s *PostgresStore) TransitionFiling(ctx context.Context, accession string, from, to model.FilingStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Errorf("postgres: illegal transition %s -> %s", from, to)
	}

	query := `UPDATE filings SET status = $1`
	if col := stageTimestampCol(to); col != "" {
		query += `, ` + col + ` = now()`
	}
	query += ` WHERE accession_number = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, string(to), accession, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: transition %s", accession)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongStatus
	}
	return nil
}

// MarkFilingDownloaded moves downloading -> downloaded, records the document
// location, and enqueues the analyze task in the same transaction.
func (s *PostgresStore) MarkFilingDownloaded(ctx context.Context, accession, primaryDocURL, localPath string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin mark downloaded")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE filings SET status = $1, primary_doc_url = $2, local_path = $3, downloaded_at = now(), error_message = NULL
		 WHERE accession_number = $4 AND status = $5`,
		string(model.StatusDownloaded), primaryDocURL, localPath, accession, string(model.StatusDownloading),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark downloaded %s", accession)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongStatus
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = EXCLUDED.next_attempt_at`,
		uuid.New().String(), accession, string(model.StageAnalyze), 3, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: enqueue analyze for %s", accession)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit mark downloaded")
}

// CompleteFiling moves ai_processing -> completed and stores the analysis.
func (s *PostgresStore) CompleteFiling(ctx context.Context, accession string, analysis *model.Analysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE filings SET status = $1, analysis = $2, completed_at = now(), error_message = NULL
		 WHERE accession_number = $3 AND status = $4`,
		string(model.StatusCompleted), analysisJSON, accession, string(model.StatusAIProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete filing %s", accession)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongStatus
	}
	return nil
}

// FailFiling records a stage failure: status failed, message, retry count
// bumped, and the time the filing becomes retry-eligible again.
func (s *PostgresStore) FailFiling(ctx context.Context, accession, message string, nextRetryAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE filings SET status = $1, error_message = $2, retry_count = retry_count + 1, next_retry_at = $3
		 WHERE accession_number = $4`,
		string(model.StatusFailed), message, nextRetryAt, accession,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail filing %s", accession)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("filing not found: %s", accession)
	}
	return nil
}

// RequeueRetryable resets retry-eligible failed filings to discovered and
// re-enqueues their download tasks. Filings past the attempt budget stay
// failed. Returns the number requeued.
func (s *PostgresStore) RequeueRetryable(ctx context.Context, maxAttempts int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin requeue")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`UPDATE filings SET status = $1, error_message = NULL
		 WHERE status = $2 AND retry_count < $3 AND (next_retry_at IS NULL OR next_retry_at <= now())
		 RETURNING accession_number`,
		string(model.StatusDiscovered), string(model.StatusFailed), maxAttempts,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: requeue retryable")
	}

	var accessions []string
	for rows.Next() {
		var acc string
		if err := rows.Scan(&acc); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan requeued accession")
		}
		accessions = append(accessions, acc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: requeue iterate")
	}

	now := time.Now().UTC()
	for _, acc := range accessions {
		_, err = tx.Exec(ctx,
			`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $5)
			 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = EXCLUDED.next_attempt_at, attempts = 0`,
			uuid.New().String(), acc, string(model.StageDownload), maxAttempts, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: re-enqueue download for %s", acc)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit requeue")
	}
	return len(accessions), nil
}

// UpsertCompany inserts or refreshes one company. Index flags only ever
// widen here; authoritative membership comes from UpsertCompanies plus
// SetIndexMembership during universe sync.
func (s *PostgresStore) UpsertCompany(ctx context.Context, c *model.Company) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (cik, ticker, name, exchange, is_sp500, is_nasdaq100, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (cik) DO UPDATE SET
		   ticker = COALESCE(NULLIF(EXCLUDED.ticker, ''), companies.ticker),
		   name = EXCLUDED.name,
		   exchange = COALESCE(NULLIF(EXCLUDED.exchange, ''), companies.exchange),
		   is_sp500 = companies.is_sp500 OR EXCLUDED.is_sp500,
		   is_nasdaq100 = companies.is_nasdaq100 OR EXCLUDED.is_nasdaq100,
		   is_active = EXCLUDED.is_active`,
		c.CIK, c.Ticker, c.Name, c.Exchange, c.IsSP500, c.IsNasdaq100, c.IsActive, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert company %s", c.CIK)
}

// UpsertCompanies bulk-upserts the full ticker universe.
func (s *PostgresStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	cols := []string{"cik", "ticker", "name", "exchange", "is_sp500", "is_nasdaq100", "is_active", "created_at"}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []any{c.CIK, c.Ticker, c.Name, c.Exchange, c.IsSP500, c.IsNasdaq100, c.IsActive, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      cols,
		ConflictKeys: []string{"cik"},
		UpdateCols:   []string{"ticker", "name", "exchange", "is_active"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert companies")
}

// GetCompanyByCIK returns (nil, nil) when the company is unknown.
func (s *PostgresStore) GetCompanyByCIK(ctx context.Context, cik string) (*model.Company, error) {
	var c model.Company
	var ticker, exchange *string

	err := s.pool.QueryRow(ctx,
		`SELECT cik, ticker, name, exchange, is_sp500, is_nasdaq100, is_active, last_filing_at, created_at
		 FROM companies WHERE cik = $1`,
		cik,
	).Scan(&c.CIK, &ticker, &c.Name, &exchange, &c.IsSP500, &c.IsNasdaq100, &c.IsActive, &c.LastFilingAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", cik)
	}
	if ticker != nil {
		c.Ticker = *ticker
	}
	if exchange != nil {
		c.Exchange = *exchange
	}
	return &c, nil
}

// MonitoredCIKs returns the discovery universe: active companies in either
// index.
func (s *PostgresStore) MonitoredCIKs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cik FROM companies WHERE is_active AND (is_sp500 OR is_nasdaq100)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: monitored ciks")
	}
	defer rows.Close()

	ciks := make(map[string]bool)
	for rows.Next() {
		var cik string
		if err := rows.Scan(&cik); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cik")
		}
		ciks[cik] = true
	}
	return ciks, eris.Wrap(rows.Err(), "postgres: monitored ciks iterate")
}

// SetIndexMembership marks the given tickers as members of an index
// ("sp500" or "nasdaq100") and clears the flag everywhere else.
func (s *PostgresStore) SetIndexMembership(ctx context.Context, tickers []string, index string) (int64, error) {
	var col string
	switch index {
	case "sp500":
		col = "is_sp500"
	case "nasdaq100":
		col = "is_nasdaq100"
	default:
		return 0, eris.Errorf("postgres: unknown index %q", index)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin index membership")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE companies SET `+col+` = false WHERE `+col); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear %s", col)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE companies SET `+col+` = true WHERE ticker = ANY($1)`,
		tickers,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: set %s", col)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit index membership")
	}
	return tag.RowsAffected(), nil
}

// EnqueueTask adds a stage task, reviving any existing row for the same
// filing and stage.
func (s *PostgresStore) EnqueueTask(ctx context.Context, accession string, stage model.TaskStage, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = EXCLUDED.next_attempt_at`,
		uuid.New().String(), accession, string(stage), maxAttempts, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: enqueue %s for %s", stage, accession)
}

// ClaimTasks atomically claims up to limit due tasks for a stage.
// FOR UPDATE SKIP LOCKED lets concurrent workers claim disjoint sets; a
// claim older than the visibility timeout is considered abandoned and can
// be claimed again, giving at-least-once delivery.
func (s *PostgresStore) ClaimTasks(ctx context.Context, stage model.TaskStage, limit int, visibility time.Duration) ([]model.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	staleBefore := time.Now().UTC().Add(-visibility)

	rows, err := s.pool.Query(ctx,
		`UPDATE tasks SET claimed_at = now(), attempts = attempts + 1
		 WHERE id IN (
		   SELECT id FROM tasks
		   WHERE stage = $1
		     AND next_attempt_at <= now()
		     AND (claimed_at IS NULL OR claimed_at < $2)
		     AND attempts < max_attempts
		   ORDER BY created_at
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, accession_number, stage, attempts, max_attempts, next_attempt_at, claimed_at, created_at`,
		string(stage), staleBefore, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: claim %s tasks", stage)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var st string
		if err := rows.Scan(&t.ID, &t.AccessionNumber, &st, &t.Attempts, &t.MaxAttempts,
			&t.NextAttemptAt, &t.ClaimedAt, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		t.Stage = model.TaskStage(st)
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: claim tasks iterate")
}

// CompleteTask removes a finished task.
func (s *PostgresStore) CompleteTask(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	return eris.Wrapf(err, "postgres: complete task %s", taskID)
}

// ReleaseTask returns a claimed task to the queue for a later attempt.
func (s *PostgresStore) ReleaseTask(ctx context.Context, taskID string, nextAttemptAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET claimed_at = NULL, next_attempt_at = $1 WHERE id = $2`,
		nextAttemptAt, taskID,
	)
	return eris.Wrapf(err, "postgres: release task %s", taskID)
}

// RecordVote upserts the user's vote (replace on re-vote) and refreshes the
// denormalized counters on the filing, returning the new counts.
func (s *PostgresStore) RecordVote(ctx context.Context, accession, userID string, sentiment model.VoteSentiment) (*model.VoteCounts, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin vote")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO filing_votes (accession_number, user_id, sentiment, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (accession_number, user_id) DO UPDATE SET sentiment = $3, created_at = $4`,
		accession, userID, string(sentiment), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record vote %s", accession)
	}

	var counts model.VoteCounts
	err = tx.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE sentiment = 'bullish'),
		   count(*) FILTER (WHERE sentiment = 'neutral'),
		   count(*) FILTER (WHERE sentiment = 'bearish')
		 FROM filing_votes WHERE accession_number = $1`,
		accession,
	).Scan(&counts.Bullish, &counts.Neutral, &counts.Bearish)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count votes %s", accession)
	}

	_, err = tx.Exec(ctx,
		`UPDATE filings SET bullish_votes = $1, neutral_votes = $2, bearish_votes = $3 WHERE accession_number = $4`,
		counts.Bullish, counts.Neutral, counts.Bearish, accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update vote counters %s", accession)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit vote")
	}
	return &counts, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, accession, userID, body string) (*model.Comment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin comment")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c := &model.Comment{
		ID:              uuid.New().String(),
		AccessionNumber: accession,
		UserID:          userID,
		Body:            body,
		CreatedAt:       time.Now().UTC(),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO filing_comments (id, accession_number, user_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AccessionNumber, c.UserID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: add comment %s", accession)
	}

	_, err = tx.Exec(ctx,
		`UPDATE filings SET comment_count = comment_count + 1 WHERE accession_number = $1`,
		accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: bump comment count %s", accession)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit comment")
	}
	return c, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, accession string, limit int) ([]model.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, accession_number, user_id, body, created_at
		 FROM filing_comments WHERE accession_number = $1
		 ORDER BY created_at DESC LIMIT $2`,
		accession, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list comments %s", accession)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.AccessionNumber, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan comment")
		}
		comments = append(comments, c)
	}
	return comments, eris.Wrap(rows.Err(), "postgres: list comments iterate")
}

func (s *PostgresStore) AddWatch(ctx context.Context, userID, ticker string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watchlist (user_id, ticker, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, ticker) DO NOTHING`,
		userID, ticker, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add watch %s", ticker)
}

func (s *PostgresStore) RemoveWatch(ctx context.Context, userID, ticker string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND ticker = $2`,
		userID, ticker,
	)
	return eris.Wrapf(err, "postgres: remove watch %s", ticker)
}

func (s *PostgresStore) ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, ticker, created_at FROM watchlist WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list watchlist")
	}
	defer rows.Close()

	var entries []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.UserID, &e.Ticker, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan watchlist entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list watchlist iterate")
}

// CountViewsSince counts detail views by one user since the given time,
// backing the free-tier daily cap.
func (s *PostgresStore) CountViewsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM filing_views WHERE user_id = $1 AND viewed_at >= $2`,
		userID, since,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count views")
}

func (s *PostgresStore) RecordView(ctx context.Context, userID, accession string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record view")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO filing_views (id, user_id, accession_number, viewed_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, accession, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record view %s", accession)
	}

	_, err = tx.Exec(ctx,
		`UPDATE filings SET view_count = view_count + 1 WHERE accession_number = $1`,
		accession,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: bump view count %s", accession)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit record view")
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}

	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM filings GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		stats.ByStatus[status] = n
		stats.TotalFilings += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats iterate")
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM filings WHERE discovered_at >= $1`, dayStart,
	).Scan(&stats.FilingsToday)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats today")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE is_active AND (is_sp500 OR is_nasdaq100)) FROM companies`,
	).Scan(&stats.Companies, &stats.Monitored)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats companies")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE claimed_at IS NULL), count(*) FILTER (WHERE claimed_at IS NOT NULL) FROM tasks`,
	).Scan(&stats.PendingTasks, &stats.ClaimedTasks)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats tasks")
	}

	return stats, nil
}
