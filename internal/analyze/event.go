package analyze

import (
	"regexp"
	"strings"
)

// item patterns from the 8-K form structure; checked in item order so the
// most specific disclosure wins.
var eightKItems = []struct {
	re    *regexp.Regexp
	event string
}{
	{regexp.MustCompile(`item\s*1\.01`), "Entry into Material Agreement"},
	{regexp.MustCompile(`item\s*1\.02`), "Termination of Material Agreement"},
	{regexp.MustCompile(`item\s*2\.01`), "Completion of Acquisition or Disposition"},
	{regexp.MustCompile(`item\s*2\.02`), "Results of Operations"},
	{regexp.MustCompile(`item\s*2\.03`), "Material Direct Financial Obligation"},
	{regexp.MustCompile(`item\s*3\.01`), "Notice of Delisting"},
	{regexp.MustCompile(`item\s*3\.02`), "Unregistered Sales of Securities"},
	{regexp.MustCompile(`item\s*4\.01`), "Changes in Accountant"},
	{regexp.MustCompile(`item\s*5\.01`), "Changes in Control"},
	{regexp.MustCompile(`item\s*5\.02`), "Executive Officer Changes"},
	{regexp.MustCompile(`item\s*5\.03`), "Amendments to Corporate Governance"},
	{regexp.MustCompile(`item\s*7\.01`), "Regulation FD Disclosure"},
	{regexp.MustCompile(`item\s*8\.01`), "Other Events"},
}

// Identify8KEvent classifies an 8-K by its item number, falling back to
// keyword inference when no item header survived text extraction.
func Identify8KEvent(content string) string {
	lower := strings.ToLower(content)

	for _, item := range eightKItems {
		if item.re.MatchString(lower) {
			return item.event
		}
	}

	switch {
	case strings.Contains(lower, "ceo"), strings.Contains(lower, "cfo"),
		strings.Contains(lower, "executive"):
		return "Executive Changes"
	case strings.Contains(lower, "earnings"), strings.Contains(lower, "results"):
		return "Earnings Results"
	case strings.Contains(lower, "acquisition"), strings.Contains(lower, "merger"):
		return "Merger/Acquisition"
	case strings.Contains(lower, "dividend"):
		return "Dividend Announcement"
	case strings.Contains(lower, "debt"), strings.Contains(lower, "note"),
		strings.Contains(lower, "bond"):
		return "Debt Issuance"
	}
	return "Material Event"
}
