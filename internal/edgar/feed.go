// Package edgar talks to SEC EDGAR: the getcurrent Atom feed for discovery,
// the submissions API for company metadata, and the archive index for
// resolving filing documents.
package edgar

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// feedEntry is one <entry> element of the EDGAR getcurrent Atom feed.
type feedEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	ID      string `xml:"id"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Category struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

var (
	// "8-K - APPLE INC (0000320193) (Filer)" and variants without the
	// trailing role suffix or without a CIK.
	titleRe        = regexp.MustCompile(`^([\w\-/]+)\s*-\s*(.+?)\s*\((\d{1,10})\)(?:\s*\([^)]+\))*$`)
	titleNoCIKRe   = regexp.MustCompile(`^([\w\-/]+)\s*-\s*(.+)$`)
	accessionInRe  = regexp.MustCompile(`(\d{10}-\d{2}-\d{6})`)
	cikInLinkRe    = regexp.MustCompile(`CIK=(\d+)`)
	cikInSummaryRe = regexp.MustCompile(`CIK[:\s]+(\d+)`)
	roleSuffixRe   = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// entry timestamps come back in a couple of layouts depending on the feed.
var feedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}

// normalizeEntry converts a feed entry into a Filing in status discovered.
// Entries for unsupported forms or with unparseable metadata return an error
// so the scanner can count and skip them.
func normalizeEntry(e feedEntry) (*model.Filing, error) {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return nil, eris.New("edgar: entry has no title")
	}

	var rawForm, company, cik string
	if m := titleRe.FindStringSubmatch(title); m != nil {
		rawForm, company, cik = m[1], m[2], m[3]
	} else if m := titleNoCIKRe.FindStringSubmatch(title); m != nil {
		rawForm, company = m[1], m[2]
	} else {
		return nil, eris.Errorf("edgar: unparseable entry title %q", title)
	}

	// The category term is authoritative for the form when present.
	if e.Category.Term != "" {
		rawForm = e.Category.Term
	}
	form, ok := model.NormalizeFormType(rawForm)
	if !ok {
		return nil, eris.Errorf("edgar: unsupported form %q", rawForm)
	}

	if cik == "" {
		if m := cikInLinkRe.FindStringSubmatch(e.Link.Href); m != nil {
			cik = m[1]
		} else if m := cikInSummaryRe.FindStringSubmatch(e.Summary); m != nil {
			cik = m[1]
		}
	}
	if cik == "" {
		return nil, eris.Errorf("edgar: no CIK for entry %q", title)
	}
	cik = model.PadCIK(cik)

	accession := ""
	if m := accessionInRe.FindStringSubmatch(e.ID); m != nil {
		accession = m[1]
	} else if m := accessionInRe.FindStringSubmatch(e.Link.Href); m != nil {
		accession = m[1]
	}
	if !model.ValidAccession(accession) {
		return nil, eris.Errorf("edgar: no accession number for entry %q", title)
	}

	filedAt, err := parseFeedTime(e.Updated)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: entry %q", title)
	}

	company = strings.TrimSpace(roleSuffixRe.ReplaceAllString(company, ""))

	return &model.Filing{
		AccessionNumber: accession,
		CIK:             cik,
		CompanyName:     company,
		FormType:        form,
		FiledAt:         filedAt,
		IndexURL:        e.Link.Href,
		Status:          model.StatusDiscovered,
	}, nil
}

// tzReplacer rewrites US timezone abbreviations to offsets; Go parses the
// abbreviations but pins them to UTC, which shifts the timestamp.
var tzReplacer = strings.NewReplacer("EDT", "-0400", "EST", "-0500", "PDT", "-0700", "PST", "-0800")

func parseFeedTime(s string) (time.Time, error) {
	s = tzReplacer.Replace(strings.TrimSpace(s))
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable feed time %q", s)
}
