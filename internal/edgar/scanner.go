package edgar

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// Store is the subset of the persistence layer the scanner needs.
type Store interface {
	// MonitoredCIKs returns the CIKs of active index-member companies.
	MonitoredCIKs(ctx context.Context) (map[string]bool, error)

	// GetCompanyByCIK returns (nil, nil) when the company is unknown.
	GetCompanyByCIK(ctx context.Context, cik string) (*model.Company, error)

	UpsertCompany(ctx context.Context, company *model.Company) error

	// InsertFilingIfNew persists the filing and enqueues its download task
	// in one transaction. Returns false when the accession number was
	// already present.
	InsertFilingIfNew(ctx context.Context, filing *model.Filing) (bool, error)
}

// Scanner polls the EDGAR feed and turns new entries into queued filings.
type Scanner struct {
	client   *Client
	store    Store
	lookback time.Duration
}

// NewScanner creates a scanner. lookback bounds how far back feed entries are
// accepted; it should exceed the scan interval so consecutive scans overlap.
func NewScanner(client *Client, store Store, lookback time.Duration) *Scanner {
	if lookback <= 0 {
		lookback = 2 * time.Minute
	}
	return &Scanner{client: client, store: store, lookback: lookback}
}

// ScanResult summarizes one feed scan.
type ScanResult struct {
	Scanned  int // feed entries that normalized into supported filings
	Relevant int // entries passing the monitored-company filter
	New      int // filings inserted and queued this scan
}

// Scan performs one discovery pass. Index-member companies are matched by
// CIK; S-1 registrations are always taken since IPO filers are not index
// members yet. Already-known accession numbers are skipped silently, so
// overlapping scans are safe.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	log := zap.L().With(zap.String("component", "scanner"))
	scanStart := time.Now().UTC()

	monitored, err := s.store.MonitoredCIKs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scanner: load monitored companies")
	}

	cutoff := scanStart.Add(-s.lookback)
	filings, err := s.client.RecentFilings(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "scanner: fetch feed")
	}

	result := &ScanResult{Scanned: len(filings)}
	for _, filing := range filings {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "scanner: cancelled")
		}

		if filing.FormType != model.FormS1 && !monitored[filing.CIK] {
			continue
		}
		result.Relevant++

		if err := s.attachCompany(ctx, filing); err != nil {
			log.Warn("skip filing, company lookup failed",
				zap.String("accession", filing.AccessionNumber),
				zap.String("cik", filing.CIK),
				zap.Error(err),
			)
			continue
		}

		filing.DiscoveredAt = scanStart
		inserted, err := s.store.InsertFilingIfNew(ctx, filing)
		if err != nil {
			log.Error("insert filing failed",
				zap.String("accession", filing.AccessionNumber),
				zap.Error(err),
			)
			continue
		}
		if !inserted {
			continue
		}
		result.New++

		log.Info("new filing discovered",
			zap.String("accession", filing.AccessionNumber),
			zap.String("ticker", filing.Ticker),
			zap.String("form", string(filing.FormType)),
			zap.Time("filed_at", filing.FiledAt),
		)
	}

	log.Info("scan complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("relevant", result.Relevant),
		zap.Int("new", result.New),
		zap.Duration("elapsed", time.Since(scanStart)),
	)
	return result, nil
}

// attachCompany fills ticker and company name from the local companies table,
// falling back to the submissions API for companies we have never seen (S-1
// filers, mostly). API misses are tolerated: the feed entry already carries a
// company name.
func (s *Scanner) attachCompany(ctx context.Context, filing *model.Filing) error {
	company, err := s.store.GetCompanyByCIK(ctx, filing.CIK)
	if err != nil {
		return err
	}
	if company == nil {
		company, err = s.client.CompanyInfo(ctx, filing.CIK)
		if err != nil {
			return err
		}
		if company == nil {
			return nil
		}
		if company.Name == "" {
			company.Name = filing.CompanyName
		}
		if err := s.store.UpsertCompany(ctx, company); err != nil {
			return err
		}
	}

	filing.Ticker = company.Ticker
	if company.Name != "" {
		filing.CompanyName = company.Name
	}
	return nil
}
