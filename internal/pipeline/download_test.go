package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

type fakeResolver struct {
	url string
	err error
}

func (r *fakeResolver) PrimaryDocumentURL(_ context.Context, _ *model.Filing) (string, error) {
	return r.url, r.err
}

// fakeFetcher writes canned content to the target path.
type fakeFetcher struct {
	content string
	err     error
	calls   int
}

func (f *fakeFetcher) DownloadToFile(_ context.Context, _, path string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
		return 0, err
	}
	return int64(len(f.content)), nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func pipelineFiling(accession string) *model.Filing {
	return &model.Filing{
		AccessionNumber: accession,
		CIK:             "0000320193",
		Ticker:          "AAPL",
		CompanyName:     "Apple Inc.",
		FormType:        model.Form8K,
		FiledAt:         time.Now().UTC().Add(-time.Hour),
		IndexURL:        "https://www.sec.gov/Archives/edgar/data/320193/000032019325000078/index.json",
	}
}

func claimOne(t *testing.T, st store.Store, stage model.TaskStage) model.Task {
	t.Helper()
	tasks, err := st.ClaimTasks(context.Background(), stage, 1, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func TestDownloader_Process(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dataDir := t.TempDir()

	_, err := st.InsertFilingIfNew(ctx, pipelineFiling("0000320193-25-000078"))
	require.NoError(t, err)

	fetch := &fakeFetcher{content: "<html><body>" + longFilingText() + "</body></html>"}
	d := NewDownloader(st, &fakeResolver{
		url: "https://www.sec.gov/Archives/edgar/data/320193/000032019325000078/aapl-8k.htm",
	}, fetch, DownloaderOptions{DataDir: dataDir, MinBytes: 10})

	task := claimOne(t, st, model.StageDownload)
	require.NoError(t, d.Process(ctx, task))

	f, err := st.GetFiling(ctx, "0000320193-25-000078")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, model.StatusDownloaded, f.Status)

	wantPath := filepath.Join(dataDir, "0000320193", "000032019325000078", "aapl-8k.htm")
	assert.Equal(t, wantPath, f.LocalPath)
	_, statErr := os.Stat(wantPath)
	assert.NoError(t, statErr)

	// The download task is gone; an analyze task is queued.
	tasks, err := st.ClaimTasks(ctx, model.StageDownload, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	analyzeTask := claimOne(t, st, model.StageAnalyze)
	assert.Equal(t, "0000320193-25-000078", analyzeTask.AccessionNumber)
}

func TestDownloader_FetchFailureMarksFilingFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertFilingIfNew(ctx, pipelineFiling("0000320193-25-000079"))
	require.NoError(t, err)

	d := NewDownloader(st, &fakeResolver{url: "https://www.sec.gov/doc.htm"},
		&fakeFetcher{err: eris.New("connection reset")},
		DownloaderOptions{DataDir: t.TempDir()})

	task := claimOne(t, st, model.StageDownload)
	require.NoError(t, d.Process(ctx, task))

	f, err := st.GetFiling(ctx, "0000320193-25-000079")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.Status)
	assert.Equal(t, 1, f.RetryCount)
	require.NotNil(t, f.NextRetryAt)
	assert.True(t, f.NextRetryAt.After(time.Now().UTC()))
	assert.Contains(t, f.ErrorMessage, "connection reset")
}

func TestDownloader_TooSmallDocumentFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertFilingIfNew(ctx, pipelineFiling("0000320193-25-000080"))
	require.NoError(t, err)

	d := NewDownloader(st, &fakeResolver{url: "https://www.sec.gov/doc.htm"},
		&fakeFetcher{content: "x"},
		DownloaderOptions{DataDir: t.TempDir(), MinBytes: 512})

	task := claimOne(t, st, model.StageDownload)
	require.NoError(t, d.Process(ctx, task))

	f, err := st.GetFiling(ctx, "0000320193-25-000080")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.Status)
	assert.Contains(t, f.ErrorMessage, "too small")
}

func TestDownloader_SkipsFilingNotInDiscovered(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertFilingIfNew(ctx, pipelineFiling("0000320193-25-000081"))
	require.NoError(t, err)
	task := claimOne(t, st, model.StageDownload)

	// Another worker already claimed the filing itself.
	require.NoError(t, st.TransitionFiling(ctx, "0000320193-25-000081",
		model.StatusDiscovered, model.StatusDownloading))

	fetch := &fakeFetcher{content: "unused"}
	d := NewDownloader(st, &fakeResolver{url: "https://www.sec.gov/doc.htm"}, fetch,
		DownloaderOptions{DataDir: t.TempDir()})
	require.NoError(t, d.Process(ctx, task))

	assert.Zero(t, fetch.calls)
	f, err := st.GetFiling(ctx, "0000320193-25-000081")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDownloading, f.Status)

	// Task dropped, not retried.
	tasks, err := st.ClaimTasks(ctx, model.StageDownload, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDownloader_UnknownFilingCompletesTask(t *testing.T) {
	st := newTestStore(t)
	d := NewDownloader(st, &fakeResolver{}, &fakeFetcher{}, DownloaderOptions{DataDir: t.TempDir()})

	err := d.Process(context.Background(), model.Task{
		ID:              "orphan-task",
		AccessionNumber: "0000000000-00-000000",
		Stage:           model.StageDownload,
	})
	require.NoError(t, err)
}
