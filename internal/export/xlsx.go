// Package export writes completed filings to spreadsheet digests.
package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

var digestHeader = []string{
	"Accession", "Ticker", "Company", "Form", "Filed", "Tone", "Summary", "Tags",
}

// WriteDigest exports completed filings matching the filter to an xlsx
// workbook at path. Returns the number of rows written.
func WriteDigest(ctx context.Context, st store.Store, filter store.FilingFilter, path string) (int, error) {
	filter.Status = model.StatusCompleted
	filings, err := st.ListFilings(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "export: list filings")
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Filings")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range digestHeader {
		header.AddCell().SetString(name)
	}

	for _, filing := range filings {
		addFilingRow(sheet, &filing)
	}

	if err := file.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("digest written",
		zap.String("path", path),
		zap.Int("filings", len(filings)))
	return len(filings), nil
}

func addFilingRow(sheet *xlsx.Sheet, filing *model.Filing) {
	row := sheet.AddRow()
	row.AddCell().SetString(filing.AccessionNumber)
	row.AddCell().SetString(filing.Ticker)
	row.AddCell().SetString(filing.CompanyName)
	row.AddCell().SetString(string(filing.FormType))
	row.AddCell().SetString(filing.FiledAt.UTC().Format("2006-01-02"))

	tone, summary, tags := "", "", ""
	if filing.Analysis != nil {
		tone = string(filing.Analysis.Tone)
		summary = filing.Analysis.FeedSummary
		if summary == "" {
			summary = filing.Analysis.Summary
		}
		tags = strings.Join(filing.Analysis.Tags, " ")
	}
	row.AddCell().SetString(tone)
	row.AddCell().SetString(summary)
	row.AddCell().SetString(tags)
}
