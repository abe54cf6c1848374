package edgar

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/config"
	"github.com/sells-group/edgar-monitor/internal/fetcher"
	"github.com/sells-group/edgar-monitor/internal/model"
)

const (
	dataBaseURL       = "https://data.sec.gov"
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"
	feedPageSize      = 100
)

// Client fetches filing metadata and documents from SEC EDGAR.
type Client struct {
	f          fetcher.Fetcher
	baseURL    string
	dataURL    string
	tickersURL string
	forms      []model.FormType

	// feedETags remembers the last ETag per feed URL so a 60-second poll
	// against an unchanged feed costs a single 304.
	mu        sync.Mutex
	feedETags map[string]string
}

// NewClient creates an EDGAR client. The fetcher must already carry the
// SEC-required User-Agent and per-host rate limiters.
func NewClient(f fetcher.Fetcher, cfg config.EdgarConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.sec.gov"
	}
	var forms []model.FormType
	for _, raw := range cfg.FormTypes {
		if ft, ok := model.NormalizeFormType(raw); ok {
			forms = append(forms, ft)
		}
	}
	if len(forms) == 0 {
		forms = []model.FormType{model.Form10K, model.Form10Q, model.Form8K, model.FormS1}
	}
	return &Client{
		f:          f,
		baseURL:    baseURL,
		dataURL:    dataBaseURL,
		tickersURL: companyTickersURL,
		forms:      forms,
		feedETags:  make(map[string]string),
	}
}

// feedURL builds the getcurrent Atom URL for one form type. Ownership
// reports are excluded; the feed returns the most recent filings first.
func (c *Client) feedURL(form model.FormType) string {
	q := url.Values{}
	q.Set("action", "getcurrent")
	q.Set("type", string(form))
	q.Set("owner", "exclude")
	q.Set("output", "atom")
	q.Set("count", fmt.Sprint(feedPageSize))
	q.Set("start", "0")
	return c.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()
}

// RecentFilings polls the getcurrent feed for every configured form type and
// returns discovered filings newer than the cutoff, newest first. Entries
// that fail to normalize are skipped, not fatal.
func (c *Client) RecentFilings(ctx context.Context, cutoff time.Time) ([]*model.Filing, error) {
	log := zap.L().With(zap.String("component", "edgar"))

	var filings []*model.Filing
	seen := make(map[string]bool)
	for _, form := range c.forms {
		entries, err := c.fetchFeed(ctx, c.feedURL(form))
		if err != nil {
			return nil, eris.Wrapf(err, "edgar: fetch %s feed", form)
		}

		skipped := 0
		for _, entry := range entries {
			filing, err := normalizeEntry(entry)
			if err != nil {
				skipped++
				log.Debug("skip feed entry", zap.Error(err))
				continue
			}
			if filing.FiledAt.Before(cutoff) {
				continue
			}
			if seen[filing.AccessionNumber] {
				continue
			}
			seen[filing.AccessionNumber] = true
			filings = append(filings, filing)
		}
		log.Debug("feed page processed",
			zap.String("form", string(form)),
			zap.Int("entries", len(entries)),
			zap.Int("skipped", skipped),
		)
	}

	sort.Slice(filings, func(i, j int) bool {
		return filings[i].FiledAt.After(filings[j].FiledAt)
	})
	return filings, nil
}

func (c *Client) fetchFeed(ctx context.Context, feedURL string) ([]feedEntry, error) {
	c.mu.Lock()
	etag := c.feedETags[feedURL]
	c.mu.Unlock()

	body, newETag, changed, err := c.f.DownloadIfChanged(ctx, feedURL, etag)
	if err != nil {
		return nil, err
	}
	if !changed {
		zap.L().Debug("feed unchanged since last poll", zap.String("url", feedURL))
		return nil, nil
	}
	defer body.Close() //nolint:errcheck

	c.mu.Lock()
	c.feedETags[feedURL] = newETag
	c.mu.Unlock()

	entryCh, errCh := fetcher.StreamXML[feedEntry](ctx, body, "entry")
	var entries []feedEntry
	for entry := range entryCh {
		entries = append(entries, entry)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return entries, nil
}

// companySubmissions is the subset of data.sec.gov/submissions/CIK{cik}.json
// the monitor cares about.
type companySubmissions struct {
	CIK            any      `json:"cik"`
	Name           string   `json:"name"`
	Tickers        []string `json:"tickers"`
	Exchanges      []string `json:"exchanges"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sicDescription"`
}

// CompanyInfo fetches company metadata by CIK from the submissions API.
// Returns (nil, nil) when EDGAR has no record for the CIK.
func (c *Client) CompanyInfo(ctx context.Context, cik string) (*model.Company, error) {
	u := fmt.Sprintf("%s/submissions/CIK%s.json", c.dataURL, model.PadCIK(cik))
	body, err := c.f.Download(ctx, u)
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "edgar: company info for CIK %s", cik)
	}
	defer body.Close() //nolint:errcheck

	sub, err := fetcher.DecodeJSONObject[companySubmissions](body)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: decode submissions for CIK %s", cik)
	}

	company := &model.Company{
		CIK:      model.PadCIK(cik),
		Name:     sub.Name,
		IsActive: true,
	}
	if len(sub.Tickers) > 0 {
		company.Ticker = sub.Tickers[0]
	}
	if len(sub.Exchanges) > 0 {
		company.Exchange = sub.Exchanges[0]
	}
	return company, nil
}

// filingIndex is the JSON directory listing of one filing's archive folder.
type filingIndex struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"item"`
	} `json:"directory"`
}

// PrimaryDocumentURL resolves the URL of the primary document inside a
// filing's archive folder via the index.json directory listing. The first
// .htm document that is not the index page wins; .txt is the fallback.
func (c *Client) PrimaryDocumentURL(ctx context.Context, filing *model.Filing) (string, error) {
	cik := strings.TrimLeft(filing.CIK, "0")
	folder := fmt.Sprintf("%s/Archives/edgar/data/%s/%s", c.baseURL, cik, filing.AccessionNoDashes())

	body, err := c.f.Download(ctx, folder+"/index.json")
	if err != nil {
		return "", eris.Wrapf(err, "edgar: index for %s", filing.AccessionNumber)
	}
	defer body.Close() //nolint:errcheck

	idx, err := fetcher.DecodeJSONObject[filingIndex](body)
	if err != nil {
		return "", eris.Wrapf(err, "edgar: decode index for %s", filing.AccessionNumber)
	}

	var fallback string
	for _, item := range idx.Directory.Item {
		name := strings.ToLower(item.Name)
		if strings.HasSuffix(name, "-index.htm") || strings.HasSuffix(name, "-index.html") {
			continue
		}
		if strings.HasSuffix(name, ".htm") || strings.HasSuffix(name, ".html") {
			return folder + "/" + item.Name, nil
		}
		if fallback == "" && strings.HasSuffix(name, ".txt") {
			fallback = folder + "/" + item.Name
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", eris.Errorf("edgar: no document found for %s", filing.AccessionNumber)
}

// tickerEntry is one record of company_tickers.json, which is keyed by
// arbitrary string indexes rather than being an array.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// CompanyTickers downloads the full SEC ticker map.
func (c *Client) CompanyTickers(ctx context.Context) ([]model.Company, error) {
	body, err := c.f.Download(ctx, c.tickersURL)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: company tickers")
	}
	defer body.Close() //nolint:errcheck

	entries, err := fetcher.DecodeJSONObject[map[string]tickerEntry](body)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: decode company tickers")
	}

	companies := make([]model.Company, 0, len(*entries))
	for _, e := range *entries {
		if e.Ticker == "" {
			continue
		}
		companies = append(companies, model.Company{
			CIK:      model.PadCIK(fmt.Sprint(e.CIK)),
			Ticker:   e.Ticker,
			Name:     e.Title,
			IsActive: true,
		})
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].Ticker < companies[j].Ticker })
	return companies, nil
}
