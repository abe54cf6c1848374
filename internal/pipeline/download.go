// Package pipeline implements the per-filing processing stages: document
// download, text extraction, and AI analysis. Each stage consumes queue
// tasks, owns its filing through a status compare-and-set, and records
// failures on the filing rather than crashing the worker.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/internal/store"
)

// DocumentResolver finds the primary document URL for a filing.
// *edgar.Client satisfies this.
type DocumentResolver interface {
	PrimaryDocumentURL(ctx context.Context, f *model.Filing) (string, error)
}

// DocumentFetcher writes a remote document to local disk.
// *fetcher.HTTPFetcher satisfies this.
type DocumentFetcher interface {
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// DownloaderOptions tunes the download stage.
type DownloaderOptions struct {
	DataDir     string
	MinBytes    int64
	MaxAttempts int
	RetryBase   time.Duration
}

// Downloader executes download tasks: resolve the primary document, fetch
// it to local disk, and hand the filing to the analyze stage.
type Downloader struct {
	store    store.Store
	resolver DocumentResolver
	fetch    DocumentFetcher
	opts     DownloaderOptions
}

func NewDownloader(st store.Store, resolver DocumentResolver, f DocumentFetcher, opts DownloaderOptions) *Downloader {
	if opts.DataDir == "" {
		opts.DataDir = "data/filings"
	}
	if opts.MinBytes <= 0 {
		opts.MinBytes = 512
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Minute
	}
	return &Downloader{store: st, resolver: resolver, fetch: f, opts: opts}
}

// Stage reports the queue stage this worker consumes.
func (d *Downloader) Stage() model.TaskStage { return model.StageDownload }

// Process handles one claimed download task. A filing already past
// discovered means another worker (or a previous attempt) owns it; the task
// completes as a no-op.
func (d *Downloader) Process(ctx context.Context, task model.Task) error {
	filing, err := d.store.GetFiling(ctx, task.AccessionNumber)
	if err != nil {
		return err
	}
	if filing == nil {
		zap.L().Warn("download task for unknown filing",
			zap.String("accession", task.AccessionNumber))
		return d.store.CompleteTask(ctx, task.ID)
	}

	err = d.store.TransitionFiling(ctx, filing.AccessionNumber,
		model.StatusDiscovered, model.StatusDownloading)
	if errors.Is(err, store.ErrWrongStatus) {
		zap.L().Debug("filing not in discovered state, skipping download",
			zap.String("accession", filing.AccessionNumber),
			zap.String("status", string(filing.Status)))
		return d.store.CompleteTask(ctx, task.ID)
	}
	if err != nil {
		return err
	}

	if err := d.download(ctx, filing); err != nil {
		d.fail(ctx, filing, err)
		return d.store.CompleteTask(ctx, task.ID)
	}
	return d.store.CompleteTask(ctx, task.ID)
}

func (d *Downloader) download(ctx context.Context, filing *model.Filing) error {
	docURL, err := d.resolver.PrimaryDocumentURL(ctx, filing)
	if err != nil {
		return eris.Wrapf(err, "download: resolve primary document for %s", filing.AccessionNumber)
	}

	dir := filepath.Join(d.opts.DataDir, filing.CIK, filing.AccessionNoDashes())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "download: create dir %s", dir)
	}
	localPath := filepath.Join(dir, filepath.Base(docURL))

	n, err := d.fetch.DownloadToFile(ctx, docURL, localPath)
	if err != nil {
		return eris.Wrapf(err, "download: fetch %s", docURL)
	}
	if n < d.opts.MinBytes {
		return eris.Errorf("download: document too small (%d bytes < %d) for %s",
			n, d.opts.MinBytes, filing.AccessionNumber)
	}

	zap.L().Info("filing downloaded",
		zap.String("accession", filing.AccessionNumber),
		zap.String("form", string(filing.FormType)),
		zap.String("path", localPath),
		zap.Int64("bytes", n))

	return d.store.MarkFilingDownloaded(ctx, filing.AccessionNumber, docURL, localPath)
}

func (d *Downloader) fail(ctx context.Context, filing *model.Filing, cause error) {
	nextRetry := resilience.NextRetryAt(time.Now().UTC(), filing.RetryCount+1, d.opts.RetryBase)
	zap.L().Warn("download stage failed",
		zap.String("accession", filing.AccessionNumber),
		zap.String("class", resilience.ClassifyError(cause)),
		zap.Time("next_retry_at", nextRetry),
		zap.Error(cause))

	if err := d.store.FailFiling(ctx, filing.AccessionNumber, cause.Error(), nextRetry); err != nil {
		zap.L().Error("failed to record download failure",
			zap.String("accession", filing.AccessionNumber), zap.Error(err))
	}
}
