package model

import (
	"strings"
	"time"
)

// Company is a tracked issuer. CIK is the unique, immutable identity;
// ticker may be empty for pre-IPO issuers discovered via S-1 filings.
type Company struct {
	CIK          string     `json:"cik"`
	Ticker       string     `json:"ticker,omitempty"`
	Name         string     `json:"name"`
	Exchange     string     `json:"exchange,omitempty"`
	IsSP500      bool       `json:"is_sp500"`
	IsNasdaq100  bool       `json:"is_nasdaq100"`
	IsActive     bool       `json:"is_active"`
	LastFilingAt *time.Time `json:"last_filing_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Monitored reports whether the company is in scope for periodic
// discovery. S-1 filings bypass this check at the scanner level.
func (c *Company) Monitored() bool {
	return c.IsActive && (c.IsSP500 || c.IsNasdaq100)
}

// PadCIK zero-pads a CIK to the canonical 10-digit form used by EDGAR
// URLs and as the companies table key.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}
