// Package store persists filings, companies, the task queue, and user
// interactions. Postgres is the primary backend; sqlite backs local
// development.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// ErrWrongStatus is returned by TransitionFiling when the filing is not in
// the expected from-status. Stage workers treat it as "someone else owns
// this filing" and drop the task.
var ErrWrongStatus = eris.New("store: filing not in expected status")

// FilingFilter specifies criteria for listing filings.
type FilingFilter struct {
	Status   model.FilingStatus `json:"status,omitempty"`
	FormType model.FormType     `json:"form_type,omitempty"`
	Ticker   string             `json:"ticker,omitempty"`
	CIK      string             `json:"cik,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// Stats is a snapshot of pipeline health for the status command and API.
type Stats struct {
	TotalFilings int            `json:"total_filings"`
	ByStatus     map[string]int `json:"by_status"`
	FilingsToday int            `json:"filings_today"`
	Companies    int            `json:"companies"`
	Monitored    int            `json:"monitored"`
	PendingTasks int            `json:"pending_tasks"`
	ClaimedTasks int            `json:"claimed_tasks"`
}

// Store defines the persistence interface for the filing pipeline and API.
type Store interface {
	// Filings
	InsertFilingIfNew(ctx context.Context, filing *model.Filing) (bool, error)
	GetFiling(ctx context.Context, accession string) (*model.Filing, error)
	ListFilings(ctx context.Context, filter FilingFilter) ([]model.Filing, error)
	TransitionFiling(ctx context.Context, accession string, from, to model.FilingStatus) error
	MarkFilingDownloaded(ctx context.Context, accession, primaryDocURL, localPath string) error
	CompleteFiling(ctx context.Context, accession string, analysis *model.Analysis) error
	FailFiling(ctx context.Context, accession, message string, nextRetryAt time.Time) error
	RequeueRetryable(ctx context.Context, maxAttempts int) (int, error)

	// Companies
	UpsertCompany(ctx context.Context, company *model.Company) error
	UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error)
	GetCompanyByCIK(ctx context.Context, cik string) (*model.Company, error)
	MonitoredCIKs(ctx context.Context) (map[string]bool, error)
	SetIndexMembership(ctx context.Context, tickers []string, index string) (int64, error)

	// Task queue
	EnqueueTask(ctx context.Context, accession string, stage model.TaskStage, maxAttempts int) error
	ClaimTasks(ctx context.Context, stage model.TaskStage, limit int, visibility time.Duration) ([]model.Task, error)
	CompleteTask(ctx context.Context, taskID string) error
	ReleaseTask(ctx context.Context, taskID string, nextAttemptAt time.Time) error

	// Interactions
	RecordVote(ctx context.Context, accession, userID string, sentiment model.VoteSentiment) (*model.VoteCounts, error)
	AddComment(ctx context.Context, accession, userID, body string) (*model.Comment, error)
	ListComments(ctx context.Context, accession string, limit int) ([]model.Comment, error)
	AddWatch(ctx context.Context, userID, ticker string) error
	RemoveWatch(ctx context.Context, userID, ticker string) error
	ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error)
	CountViewsSince(ctx context.Context, userID string, since time.Time) (int, error)
	RecordView(ctx context.Context, userID, accession string) error

	// Observability and lifecycle
	GetStats(ctx context.Context) (*Stats, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
