package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

type fakeAnalyzer struct {
	analysis *model.Analysis
	err      error
	gotText  string
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ *model.Filing, text string) (*model.Analysis, error) {
	a.gotText = text
	if a.err != nil {
		return nil, a.err
	}
	return a.analysis, nil
}

func longFilingText() string {
	return strings.Repeat("The company reported results for the quarter. ", 10)
}

// seedDownloaded inserts a filing and walks it to downloaded with a real
// document on disk, returning the pending analyze task.
func seedDownloaded(t *testing.T, st store.Store, accession, content string) model.Task {
	t.Helper()
	ctx := context.Background()

	_, err := st.InsertFilingIfNew(ctx, pipelineFiling(accession))
	require.NoError(t, err)
	downloadTask := claimOne(t, st, model.StageDownload)
	require.NoError(t, st.CompleteTask(ctx, downloadTask.ID))

	path := filepath.Join(t.TempDir(), "doc.htm")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, st.TransitionFiling(ctx, accession,
		model.StatusDiscovered, model.StatusDownloading))
	require.NoError(t, st.MarkFilingDownloaded(ctx, accession,
		"https://www.sec.gov/doc.htm", path))

	return claimOne(t, st, model.StageAnalyze)
}

func TestProcessor_Process(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := seedDownloaded(t, st, "0000320193-25-000090",
		"<html><body><p>"+longFilingText()+"</p></body></html>")

	analyzer := &fakeAnalyzer{analysis: &model.Analysis{
		Summary:     "The company reported solid quarterly results.",
		FeedSummary: "Solid quarter.",
		Tone:        model.ToneOptimistic,
		Tags:        []string{"#EarningsUpdate"},
	}}
	p := NewProcessor(st, analyzer, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, task))

	// The analyzer received extracted text, not raw markup.
	assert.NotContains(t, analyzer.gotText, "<p>")
	assert.Contains(t, analyzer.gotText, "reported results")

	f, err := st.GetFiling(ctx, "0000320193-25-000090")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, f.Status)
	require.NotNil(t, f.Analysis)
	assert.Equal(t, model.ToneOptimistic, f.Analysis.Tone)
	assert.Equal(t, "Solid quarter.", f.Analysis.FeedSummary)

	tasks, err := st.ClaimTasks(ctx, model.StageAnalyze, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestProcessor_AnalyzerFailureMarksFilingFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := seedDownloaded(t, st, "0000320193-25-000091",
		"<html><body><p>"+longFilingText()+"</p></body></html>")

	p := NewProcessor(st, &fakeAnalyzer{err: eris.New("model overloaded")}, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, task))

	f, err := st.GetFiling(ctx, "0000320193-25-000091")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.Status)
	assert.Equal(t, 1, f.RetryCount)
	assert.Contains(t, f.ErrorMessage, "model overloaded")
}

func TestProcessor_ShortDocumentFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := seedDownloaded(t, st, "0000320193-25-000092", "<html><body>stub</body></html>")

	analyzer := &fakeAnalyzer{analysis: &model.Analysis{Summary: "unused"}}
	p := NewProcessor(st, analyzer, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, task))

	assert.Empty(t, analyzer.gotText)
	f, err := st.GetFiling(ctx, "0000320193-25-000092")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.Status)
	assert.Contains(t, f.ErrorMessage, "too short")
}

func TestProcessor_SkipsFilingNotInDownloaded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := seedDownloaded(t, st, "0000320193-25-000093",
		"<html><body><p>"+longFilingText()+"</p></body></html>")

	// Another worker already moved the filing forward.
	require.NoError(t, st.TransitionFiling(ctx, "0000320193-25-000093",
		model.StatusDownloaded, model.StatusAIProcessing))

	analyzer := &fakeAnalyzer{analysis: &model.Analysis{Summary: "unused"}}
	p := NewProcessor(st, analyzer, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, task))

	assert.Empty(t, analyzer.gotText)
	f, err := st.GetFiling(ctx, "0000320193-25-000093")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAIProcessing, f.Status)
}

// TestPipeline_EndToEnd walks one discovered filing through both stages.
func TestPipeline_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	const accession = "0000086312-25-000047"

	filing := pipelineFiling(accession)
	filing.CIK = "0000086312"
	inserted, err := st.InsertFilingIfNew(ctx, filing)
	require.NoError(t, err)
	require.True(t, inserted)

	fetch := &fakeFetcher{content: "<html><body><p>" + longFilingText() + "</p></body></html>"}
	d := NewDownloader(st, &fakeResolver{
		url: "https://www.sec.gov/Archives/edgar/data/86312/000008631225000047/doc.htm",
	}, fetch, DownloaderOptions{DataDir: t.TempDir(), MinBytes: 10})
	require.NoError(t, d.Process(ctx, claimOne(t, st, model.StageDownload)))

	analyzer := &fakeAnalyzer{analysis: &model.Analysis{
		Summary: "Quarterly results were in line with guidance.",
		Tone:    model.ToneNeutral,
		Tags:    []string{"#Update"},
	}}
	p := NewProcessor(st, analyzer, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, claimOne(t, st, model.StageAnalyze)))

	f, err := st.GetFiling(ctx, accession)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, f.Status)
	require.NotNil(t, f.Analysis)
	assert.NotEmpty(t, f.Analysis.Summary)
	assert.NotNil(t, f.CompletedAt)
}

func TestProcessor_MissingLocalFileFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := seedDownloaded(t, st, "0000320193-25-000094", "placeholder")
	f, err := st.GetFiling(ctx, "0000320193-25-000094")
	require.NoError(t, err)
	require.NoError(t, os.Remove(f.LocalPath))

	p := NewProcessor(st, &fakeAnalyzer{}, ProcessorOptions{})
	require.NoError(t, p.Process(ctx, task))

	f, err = st.GetFiling(ctx, "0000320193-25-000094")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.Status)
}
