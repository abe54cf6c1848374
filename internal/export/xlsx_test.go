package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	for i, acc := range []string{"0000320193-25-000001", "0000320193-25-000002"} {
		_, err := st.InsertFilingIfNew(ctx, &model.Filing{
			AccessionNumber: acc,
			CIK:             "0000320193",
			Ticker:          "AAPL",
			CompanyName:     "Apple Inc.",
			FormType:        model.Form10K,
			FiledAt:         time.Date(2025, 8, 20+i, 16, 0, 0, 0, time.UTC),
			IndexURL:        "https://www.sec.gov/Archives/index.json",
		})
		require.NoError(t, err)
		require.NoError(t, st.TransitionFiling(ctx, acc, model.StatusDiscovered, model.StatusDownloading))
		require.NoError(t, st.MarkFilingDownloaded(ctx, acc, "https://www.sec.gov/doc.htm", "/tmp/doc.htm"))
		require.NoError(t, st.TransitionFiling(ctx, acc, model.StatusDownloaded, model.StatusAIProcessing))
		require.NoError(t, st.CompleteFiling(ctx, acc, &model.Analysis{
			Summary:     "Strong annual results across segments.",
			FeedSummary: "Record year.",
			Tone:        model.ToneOptimistic,
			Tags:        []string{"#RecordRevenue", "#Growth"},
		}))
	}

	// A filing still in flight must not be exported.
	_, err = st.InsertFilingIfNew(ctx, &model.Filing{
		AccessionNumber: "0000789019-25-000001",
		CIK:             "0000789019",
		Ticker:          "MSFT",
		FormType:        model.Form8K,
		FiledAt:         time.Now().UTC(),
		IndexURL:        "https://www.sec.gov/Archives/index.json",
	})
	require.NoError(t, err)

	return st
}

func TestWriteDigest(t *testing.T) {
	st := seedStore(t)
	path := filepath.Join(t.TempDir(), "digest.xlsx")

	n, err := WriteDigest(context.Background(), st, store.FilingFilter{}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	sheet := file.Sheets[0]
	require.Len(t, sheet.Rows, 3) // header + 2 filings

	header := sheet.Rows[0]
	assert.Equal(t, "Accession", header.Cells[0].String())
	assert.Equal(t, "Tags", header.Cells[7].String())

	row := sheet.Rows[1]
	assert.Equal(t, "AAPL", row.Cells[1].String())
	assert.Equal(t, "10-K", row.Cells[3].String())
	assert.Equal(t, "optimistic", row.Cells[5].String())
	assert.Equal(t, "Record year.", row.Cells[6].String())
	assert.Contains(t, row.Cells[7].String(), "#RecordRevenue")
}

func TestWriteDigest_Empty(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	path := filepath.Join(t.TempDir(), "digest.xlsx")
	n, err := WriteDigest(context.Background(), st, store.FilingFilter{}, path)
	require.NoError(t, err)
	assert.Zero(t, n)

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets[0].Rows, 1)
}
