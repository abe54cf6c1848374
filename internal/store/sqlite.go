package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and single-process deployments; Postgres is the production
// backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Task claiming serializes on a single writer; one connection avoids
	// SQLITE_BUSY churn under the concurrent worker pools.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	cik            TEXT PRIMARY KEY,
	ticker         TEXT,
	name           TEXT NOT NULL,
	exchange       TEXT,
	is_sp500       INTEGER NOT NULL DEFAULT 0,
	is_nasdaq100   INTEGER NOT NULL DEFAULT 0,
	is_active      INTEGER NOT NULL DEFAULT 1,
	last_filing_at DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS filings (
	accession_number    TEXT PRIMARY KEY,
	cik                 TEXT NOT NULL,
	ticker              TEXT,
	company_name        TEXT,
	form_type           TEXT NOT NULL,
	filed_at            DATETIME NOT NULL,
	index_url           TEXT,
	primary_doc_url     TEXT,
	local_path          TEXT,
	status              TEXT NOT NULL DEFAULT 'discovered',
	error_message       TEXT,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	next_retry_at       DATETIME,
	analysis            TEXT,
	bullish_votes       INTEGER NOT NULL DEFAULT 0,
	neutral_votes       INTEGER NOT NULL DEFAULT 0,
	bearish_votes       INTEGER NOT NULL DEFAULT 0,
	comment_count       INTEGER NOT NULL DEFAULT 0,
	view_count          INTEGER NOT NULL DEFAULT 0,
	discovered_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	download_started_at DATETIME,
	downloaded_at       DATETIME,
	ai_started_at       DATETIME,
	completed_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);
CREATE INDEX IF NOT EXISTS idx_filings_ticker ON filings(ticker);
CREATE INDEX IF NOT EXISTS idx_filings_filed_at ON filings(filed_at DESC);

CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	stage            TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	max_attempts     INTEGER NOT NULL DEFAULT 3,
	next_attempt_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	claimed_at       DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (accession_number, stage)
);

CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(stage, next_attempt_at);

CREATE TABLE IF NOT EXISTS filing_votes (
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	user_id          TEXT NOT NULL,
	sentiment        TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (accession_number, user_id)
);

CREATE TABLE IF NOT EXISTS filing_comments (
	id               TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	user_id          TEXT NOT NULL,
	body             TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS watchlist (
	user_id    TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, ticker)
);

CREATE TABLE IF NOT EXISTS filing_views (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	accession_number TEXT NOT NULL,
	viewed_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_views_user_time ON filing_views(user_id, viewed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteFilingColumns = `accession_number, cik, ticker, company_name, form_type, filed_at,
	index_url, primary_doc_url, local_path, status, error_message,
	retry_count, next_retry_at, analysis,
	bullish_votes, neutral_votes, bearish_votes, comment_count, view_count,
	discovered_at, download_started_at, downloaded_at, ai_started_at, completed_at`

func (s *SQLiteStore) InsertFilingIfNew(ctx context.Context, f *model.Filing) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin insert filing")
	}
	defer tx.Rollback() //nolint:errcheck

	discoveredAt := f.DiscoveredAt
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO filings (accession_number, cik, ticker, company_name, form_type, filed_at, index_url, status, discovered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (accession_number) DO NOTHING`,
		f.AccessionNumber, f.CIK, f.Ticker, f.CompanyName, string(f.FormType),
		f.FiledAt, f.IndexURL, string(model.StatusDiscovered), discoveredAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert filing %s", f.AccessionNumber)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (accession_number, stage) DO NOTHING`,
		uuid.New().String(), f.AccessionNumber, string(model.StageDownload), 3, time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: enqueue download for %s", f.AccessionNumber)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE companies SET last_filing_at = ? WHERE cik = ? AND (last_filing_at IS NULL OR last_filing_at < ?)`,
		f.FiledAt, f.CIK, f.FiledAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: bump company last filing %s", f.CIK)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit insert filing")
	}
	return true, nil
}

func scanSQLiteFiling(row scannable) (*model.Filing, error) {
	var f model.Filing
	var formType, status string
	var ticker, companyName, indexURL, primaryDocURL, localPath, errMsg, analysisJSON sql.NullString

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
	f.Ticker = ticker.String
	f.CompanyName = companyName.String
	f.IndexURL = indexURL.String
	f.PrimaryDocURL = primaryDocURL.String
	f.LocalPath = localPath.String
	f.ErrorMessage = errMsg.String
	if analysisJSON.Valid && analysisJSON.String != "" {
		f.Analysis = &model.Analysis{}
		if err := json.Unmarshal([]byte(analysisJSON.String), f.Analysis); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
		}
	}
	return &f, nil
}

func (s *SQLiteStore) GetFiling(ctx context.Context, accession string) (*model.Filing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteFilingColumns+` FROM filings WHERE accession_number = ?`,
		accession,
	)
	f, err := scanSQLiteFiling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get filing %s", accession)
	}
	return f, nil
}

func (s *SQLiteStore) ListFilings(ctx context.Context, filter FilingFilter) ([]model.Filing, error) {
	query := `SELECT ` + sqliteFilingColumns + ` FROM filings WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.FormType != "" {
		query += ` AND form_type = ?`
		args = append(args, string(filter.FormType))
	}
	if filter.Ticker != "" {
		query += ` AND ticker = ?`
		args = append(args, filter.Ticker)
	}
	if filter.CIK != "" {
		query += ` AND cik = ?`
		args = append(args, filter.CIK)
	}
	query += ` ORDER BY filed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filings")
	}
	defer rows.Close()

	var filings []model.Filing
	for rows.Next() {
		f, err := scanSQLiteFiling(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filing")
		}
		filings = append(filings, *f)
	}
	return filings, eris.Wrap(rows.Err(), "sqlite: list filings iterate")
}

func (s *SQLiteStore) TransitionFiling(ctx context.Context, accession string, from, to model.FilingStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Errorf("sqlite: illegal transition %s -> %s", from, to)
	}

	query := `UPDATE filings SET status = ?`
	args := []any{string(to)}
	if col := stageTimestampCol(to); col != "" {
		query += `, ` + col + ` = ?`
		args = append(args, time.Now().UTC())
	}
	query += ` WHERE accession_number = ? AND status = ?`
	args = append(args, accession, string(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition %s", accession)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrWrongStatus
	}
	return nil
}

func (s *SQLiteStore) MarkFilingDownloaded(ctx context.Context, accession, primaryDocURL, localPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark downloaded")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE filings SET status = ?, primary_doc_url = ?, local_path = ?, downloaded_at = ?, error_message = NULL
		 WHERE accession_number = ? AND status = ?`,
		string(model.StatusDownloaded), primaryDocURL, localPath, now, accession, string(model.StatusDownloading),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark downloaded %s", accession)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrWrongStatus
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = excluded.next_attempt_at`,
		uuid.New().String(), accession, string(model.StageAnalyze), 3, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: enqueue analyze for %s", accession)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit mark downloaded")
}

func (s *SQLiteStore) CompleteFiling(ctx context.Context, accession string, analysis *model.Analysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE filings SET status = ?, analysis = ?, completed_at = ?, error_message = NULL
		 WHERE accession_number = ? AND status = ?`,
		string(model.StatusCompleted), string(analysisJSON), time.Now().UTC(),
		accession, string(model.StatusAIProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete filing %s", accession)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrWrongStatus
	}
	return nil
}

func (s *SQLiteStore) FailFiling(ctx context.Context, accession, message string, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE filings SET status = ?, error_message = ?, retry_count = retry_count + 1, next_retry_at = ?
		 WHERE accession_number = ?`,
		string(model.StatusFailed), message, nextRetryAt, accession,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail filing %s", accession)
	}
	return checkRowsAffected(res, "filing", accession)
}

func (s *SQLiteStore) RequeueRetryable(ctx context.Context, maxAttempts int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin requeue")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx,
		`SELECT accession_number FROM filings
		 WHERE status = ? AND retry_count < ? AND (next_retry_at IS NULL OR next_retry_at <= ?)`,
		string(model.StatusFailed), maxAttempts, now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: select retryable")
	}

	var accessions []string
	for rows.Next() {
		var acc string
		if err := rows.Scan(&acc); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "sqlite: scan retryable accession")
		}
		accessions = append(accessions, acc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: requeue iterate")
	}

	for _, acc := range accessions {
		_, err = tx.ExecContext(ctx,
			`UPDATE filings SET status = ?, error_message = NULL WHERE accession_number = ?`,
			string(model.StatusDiscovered), acc,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: requeue %s", acc)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = excluded.next_attempt_at, attempts = 0`,
			uuid.New().String(), acc, string(model.StageDownload), maxAttempts, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: re-enqueue download for %s", acc)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit requeue")
	}
	return len(accessions), nil
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c *model.Company) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (cik, ticker, name, exchange, is_sp500, is_nasdaq100, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cik) DO UPDATE SET
		   ticker = COALESCE(NULLIF(excluded.ticker, ''), companies.ticker),
		   name = excluded.name,
		   exchange = COALESCE(NULLIF(excluded.exchange, ''), companies.exchange),
		   is_sp500 = companies.is_sp500 OR excluded.is_sp500,
		   is_nasdaq100 = companies.is_nasdaq100 OR excluded.is_nasdaq100,
		   is_active = excluded.is_active`,
		c.CIK, c.Ticker, c.Name, c.Exchange, c.IsSP500, c.IsNasdaq100, c.IsActive, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", c.CIK)
}

func (s *SQLiteStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert companies")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO companies (cik, ticker, name, exchange, is_sp500, is_nasdaq100, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cik) DO UPDATE SET
		   ticker = excluded.ticker,
		   name = excluded.name,
		   exchange = excluded.exchange,
		   is_active = excluded.is_active`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert companies")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, c := range companies {
		if _, err := stmt.ExecContext(ctx, c.CIK, c.Ticker, c.Name, c.Exchange,
			c.IsSP500, c.IsNasdaq100, c.IsActive, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert company %s", c.CIK)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert companies")
	}
	return n, nil
}

func (s *SQLiteStore) GetCompanyByCIK(ctx context.Context, cik string) (*model.Company, error) {
	var c model.Company
	var ticker, exchange sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT cik, ticker, name, exchange, is_sp500, is_nasdaq100, is_active, last_filing_at, created_at
		 FROM companies WHERE cik = ?`,
		cik,
	).Scan(&c.CIK, &ticker, &c.Name, &exchange, &c.IsSP500, &c.IsNasdaq100, &c.IsActive, &c.LastFilingAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", cik)
	}
	c.Ticker = ticker.String
	c.Exchange = exchange.String
	return &c, nil
}

func (s *SQLiteStore) MonitoredCIKs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cik FROM companies WHERE is_active AND (is_sp500 OR is_nasdaq100)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: monitored ciks")
	}
	defer rows.Close()

	ciks := make(map[string]bool)
	for rows.Next() {
		var cik string
		if err := rows.Scan(&cik); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cik")
		}
		ciks[cik] = true
	}
	return ciks, eris.Wrap(rows.Err(), "sqlite: monitored ciks iterate")
}

func (s *SQLiteStore) SetIndexMembership(ctx context.Context, tickers []string, index string) (int64, error) {
	var col string
	switch index {
	case "sp500":
		col = "is_sp500"
	case "nasdaq100":
		col = "is_nasdaq100"
	default:
		return 0, eris.Errorf("sqlite: unknown index %q", index)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin index membership")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE companies SET `+col+` = 0 WHERE `+col); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear %s", col)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(tickers)), ",")
	args := make([]any, len(tickers))
	for i, tk := range tickers {
		args[i] = tk
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE companies SET %s = 1 WHERE ticker IN (%s)`, col, placeholders),
		args...,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: set %s", col)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit index membership")
	}
	return n, nil
}

func (s *SQLiteStore) EnqueueTask(ctx context.Context, accession string, stage model.TaskStage, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, accession_number, stage, max_attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (accession_number, stage) DO UPDATE SET claimed_at = NULL, next_attempt_at = excluded.next_attempt_at`,
		uuid.New().String(), accession, string(stage), maxAttempts, now, now,
	)
	return eris.Wrapf(err, "sqlite: enqueue %s for %s", stage, accession)
}

// ClaimTasks selects due tasks and marks them claimed in one transaction.
// The single-writer connection stands in for row locking.
func (s *SQLiteStore) ClaimTasks(ctx context.Context, stage model.TaskStage, limit int, visibility time.Duration) ([]model.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-visibility)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT id, accession_number, stage, attempts, max_attempts, next_attempt_at, created_at
		 FROM tasks
		 WHERE stage = ?
		   AND next_attempt_at <= ?
		   AND (claimed_at IS NULL OR claimed_at < ?)
		   AND attempts < max_attempts
		 ORDER BY created_at
		 LIMIT ?`,
		string(stage), now, staleBefore, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim %s tasks", stage)
	}

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var st string
		if err := rows.Scan(&t.ID, &t.AccessionNumber, &st, &t.Attempts, &t.MaxAttempts,
			&t.NextAttemptAt, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		t.Stage = model.TaskStage(st)
		tasks = append(tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim iterate")
	}

	for i := range tasks {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET claimed_at = ?, attempts = attempts + 1 WHERE id = ?`,
			now, tasks[i].ID,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: mark claimed %s", tasks[i].ID)
		}
		claimed := now
		tasks[i].ClaimedAt = &claimed
		tasks[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}
	return tasks, nil
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	return eris.Wrapf(err, "sqlite: complete task %s", taskID)
}

func (s *SQLiteStore) ReleaseTask(ctx context.Context, taskID string, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET claimed_at = NULL, next_attempt_at = ? WHERE id = ?`,
		nextAttemptAt, taskID,
	)
	return eris.Wrapf(err, "sqlite: release task %s", taskID)
}

func (s *SQLiteStore) RecordVote(ctx context.Context, accession, userID string, sentiment model.VoteSentiment) (*model.VoteCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin vote")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filing_votes (accession_number, user_id, sentiment, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (accession_number, user_id) DO UPDATE SET sentiment = excluded.sentiment, created_at = excluded.created_at`,
		accession, userID, string(sentiment), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record vote %s", accession)
	}

	var counts model.VoteCounts
	err = tx.QueryRowContext(ctx,
		`SELECT
		   count(CASE WHEN sentiment = 'bullish' THEN 1 END),
		   count(CASE WHEN sentiment = 'neutral' THEN 1 END),
		   count(CASE WHEN sentiment = 'bearish' THEN 1 END)
		 FROM filing_votes WHERE accession_number = ?`,
		accession,
	).Scan(&counts.Bullish, &counts.Neutral, &counts.Bearish)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count votes %s", accession)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE filings SET bullish_votes = ?, neutral_votes = ?, bearish_votes = ? WHERE accession_number = ?`,
		counts.Bullish, counts.Neutral, counts.Bearish, accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update vote counters %s", accession)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit vote")
	}
	return &counts, nil
}

func (s *SQLiteStore) AddComment(ctx context.Context, accession, userID, body string) (*model.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin comment")
	}
	defer tx.Rollback() //nolint:errcheck

	c := &model.Comment{
		ID:              uuid.New().String(),
		AccessionNumber: accession,
		UserID:          userID,
		Body:            body,
		CreatedAt:       time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filing_comments (id, accession_number, user_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.AccessionNumber, c.UserID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add comment %s", accession)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE filings SET comment_count = comment_count + 1 WHERE accession_number = ?`,
		accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: bump comment count %s", accession)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit comment")
	}
	return c, nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, accession string, limit int) ([]model.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, accession_number, user_id, body, created_at
		 FROM filing_comments WHERE accession_number = ?
		 ORDER BY created_at DESC LIMIT ?`,
		accession, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list comments %s", accession)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.AccessionNumber, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan comment")
		}
		comments = append(comments, c)
	}
	return comments, eris.Wrap(rows.Err(), "sqlite: list comments iterate")
}

func (s *SQLiteStore) AddWatch(ctx context.Context, userID, ticker string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist (user_id, ticker, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, ticker) DO NOTHING`,
		userID, ticker, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add watch %s", ticker)
}

func (s *SQLiteStore) RemoveWatch(ctx context.Context, userID, ticker string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = ? AND ticker = ?`,
		userID, ticker,
	)
	return eris.Wrapf(err, "sqlite: remove watch %s", ticker)
}

func (s *SQLiteStore) ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, ticker, created_at FROM watchlist WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list watchlist")
	}
	defer rows.Close()

	var entries []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.UserID, &e.Ticker, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watchlist entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list watchlist iterate")
}

func (s *SQLiteStore) CountViewsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM filing_views WHERE user_id = ? AND viewed_at >= ?`,
		userID, since,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count views")
}

func (s *SQLiteStore) RecordView(ctx context.Context, userID, accession string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record view")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filing_views (id, user_id, accession_number, viewed_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), userID, accession, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record view %s", accession)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE filings SET view_count = view_count + 1 WHERE accession_number = ?`,
		accession,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: bump view count %s", accession)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit record view")
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM filings GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.ByStatus[status] = n
		stats.TotalFilings += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats iterate")
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM filings WHERE discovered_at >= ?`, dayStart,
	).Scan(&stats.FilingsToday)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats today")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT count(*), count(CASE WHEN is_active AND (is_sp500 OR is_nasdaq100) THEN 1 END) FROM companies`,
	).Scan(&stats.Companies, &stats.Monitored)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats companies")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT count(CASE WHEN claimed_at IS NULL THEN 1 END), count(CASE WHEN claimed_at IS NOT NULL THEN 1 END) FROM tasks`,
	).Scan(&stats.PendingTasks, &stats.ClaimedTasks)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats tasks")
	}

	return stats, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
