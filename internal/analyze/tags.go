package analyze

import (
	"strings"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// matches reports whether the rule fires for the lowercased summary. A rule
// with no keywords always fires (used for always-on tags like #IPO).
func (r TagRule) matches(summary string) bool {
	for _, kw := range r.All {
		if !strings.Contains(summary, strings.ToLower(kw)) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, kw := range r.Any {
		if strings.Contains(summary, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Tags applies the form's keyword rules to the summary. eventType is the
// detected 8-K event and yields the leading tag for that form; other forms
// pass it empty. The result is capped at the form's max (5, 8-K at 4) and
// never empty: the fallback tag covers a summary no rule matched.
func Tags(rules *Rules, form model.FormType, summary, eventType string) []string {
	fr := rules.ForForm(form)
	// Pad so word-boundary keywords like " ai " match at the edges.
	lower := " " + strings.ToLower(summary) + " "

	var tags []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	if form == model.Form8K && eventType != "" {
		add(eventTag(eventType))
	}

	for _, rule := range fr.TagRules {
		if rule.matches(lower) {
			add(rule.Tag)
		}
	}

	if len(tags) == 0 {
		add(fr.FallbackTag)
	}

	max := fr.MaxTags
	if max <= 0 {
		max = 5
	}
	if len(tags) > max {
		tags = tags[:max]
	}
	return tags
}

// eventTag maps a detected 8-K event type onto its leading tag.
func eventTag(eventType string) string {
	switch {
	case strings.Contains(eventType, "Executive"):
		return "#ExecutiveChange"
	case strings.Contains(eventType, "Material Agreement"):
		return "#MaterialAgreement"
	case strings.Contains(eventType, "Financial Obligation"),
		strings.Contains(eventType, "Debt Issuance"):
		return "#DebtIssuance"
	case strings.Contains(eventType, "Results"):
		return "#EarningsUpdate"
	case strings.Contains(eventType, "Acquisition"), strings.Contains(eventType, "Merger"):
		return "#M&A"
	case strings.Contains(eventType, "Dividend"):
		return "#Dividend"
	default:
		return ""
	}
}
