package edgar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-monitor/internal/config"
	"github.com/sells-group/edgar-monitor/internal/fetcher"
	"github.com/sells-group/edgar-monitor/internal/model"
)

type fakeStore struct {
	monitored map[string]bool
	companies map[string]*model.Company
	inserted  []*model.Filing
	existing  map[string]bool
	upserts   []*model.Company
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		monitored: make(map[string]bool),
		companies: make(map[string]*model.Company),
		existing:  make(map[string]bool),
	}
}

func (s *fakeStore) MonitoredCIKs(context.Context) (map[string]bool, error) {
	return s.monitored, nil
}

func (s *fakeStore) GetCompanyByCIK(_ context.Context, cik string) (*model.Company, error) {
	return s.companies[cik], nil
}

func (s *fakeStore) UpsertCompany(_ context.Context, c *model.Company) error {
	s.upserts = append(s.upserts, c)
	s.companies[c.CIK] = c
	return nil
}

func (s *fakeStore) InsertFilingIfNew(_ context.Context, f *model.Filing) (bool, error) {
	if s.existing[f.AccessionNumber] {
		return false, nil
	}
	s.existing[f.AccessionNumber] = true
	s.inserted = append(s.inserted, f)
	return true, nil
}

const scannerFeed = `<?xml version="1.0" encoding="UTF-8" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>8-K - APPLE INC (0000320193) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/320193/000032019325000078/0000320193-25-000078-index.htm"/>
    <category label="form type" term="8-K"/>
    <updated>%s</updated>
    <id>urn:tagid:sec.gov,2008:accession-number=0000320193-25-000078</id>
  </entry>
  <entry>
    <title>8-K - UNMONITORED CO (0000000777) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/777/000000077725000001/0000000777-25-000001-index.htm"/>
    <category label="form type" term="8-K"/>
    <updated>%s</updated>
    <id>urn:tagid:sec.gov,2008:accession-number=0000000777-25-000001</id>
  </entry>
  <entry>
    <title>S-1 - Fresh IPO Corp (0001234567) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/1234567/000123456725000001/0001234567-25-000001-index.htm"/>
    <category label="form type" term="S-1"/>
    <updated>%s</updated>
    <id>urn:tagid:sec.gov,2008:accession-number=0001234567-25-000001</id>
  </entry>
</feed>`

func scannerFixture(t *testing.T) (*Scanner, *fakeStore, func()) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/cgi-bin/browse-edgar":
			fmt.Fprintf(w, scannerFeed, now, now, now)
		case r.URL.Path == "/submissions/CIK0001234567.json":
			fmt.Fprint(w, `{"cik":1234567,"name":"Fresh IPO Corp","tickers":[],"exchanges":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "Example Corp ops@example.com"})
	client := NewClient(f, config.EdgarConfig{BaseURL: srv.URL, FormTypes: []string{"8-K", "S-1"}})
	client.dataURL = srv.URL

	store := newFakeStore()
	store.monitored["0000320193"] = true
	store.companies["0000320193"] = &model.Company{
		CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc.", IsActive: true, IsSP500: true,
	}

	return NewScanner(client, store, 5*time.Minute), store, srv.Close
}

func TestScan(t *testing.T) {
	scanner, store, cleanup := scannerFixture(t)
	defer cleanup()

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	// The unmonitored 8-K is filtered; the S-1 is always taken.
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Relevant)
	assert.Equal(t, 2, result.New)
	require.Len(t, store.inserted, 2)

	byAccession := make(map[string]*model.Filing)
	for _, f := range store.inserted {
		byAccession[f.AccessionNumber] = f
	}

	apple := byAccession["0000320193-25-000078"]
	require.NotNil(t, apple)
	assert.Equal(t, "AAPL", apple.Ticker)
	assert.Equal(t, "Apple Inc.", apple.CompanyName)
	assert.Equal(t, model.StatusDiscovered, apple.Status)
	assert.False(t, apple.DiscoveredAt.IsZero())

	ipo := byAccession["0001234567-25-000001"]
	require.NotNil(t, ipo)
	assert.Equal(t, model.FormS1, ipo.FormType)
	// Unknown filer was fetched from the submissions API and upserted.
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "0001234567", store.upserts[0].CIK)
}

func TestScan_SecondPassInsertsNothing(t *testing.T) {
	scanner, store, cleanup := scannerFixture(t)
	defer cleanup()

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.New)

	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Relevant)
	assert.Equal(t, 0, second.New)
	assert.Len(t, store.inserted, 2)
}
