package analyze

import (
	"regexp"
	"strconv"
	"strings"
)

// metricPatterns capture "$X million/billion" style statements for the
// headline metrics. Values are normalized to millions of dollars; EPS stays
// in dollars per share.
var metricPatterns = map[string][]*regexp.Regexp{
	"revenue": {
		regexp.MustCompile(`(?:total\s+)?(?:net\s+)?revenues?\s*(?:of|was|were|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
		regexp.MustCompile(`(?:total\s+)?(?:net\s+)?sales\s*(?:of|was|were|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
	},
	"net_income": {
		regexp.MustCompile(`net\s+income\s*(?:of|was|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
		regexp.MustCompile(`net\s+earnings?\s*(?:of|was|were|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
	},
	"eps": {
		regexp.MustCompile(`(?:diluted\s+)?earnings?\s+per\s+share\s*(?:of|was|[:=])\s*\$?([\d.]+)`),
		regexp.MustCompile(`(?:diluted\s+)?eps\s*(?:of|was|[:=])\s*\$?([\d.]+)`),
	},
	"total_assets": {
		regexp.MustCompile(`total\s+assets\s*(?:of|were|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
	},
	"cash": {
		regexp.MustCompile(`cash\s+and\s+cash\s+equivalents\s*(?:of|were|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
	},
	"operating_cash_flow": {
		regexp.MustCompile(`(?:net\s+)?cash\s+(?:provided\s+by|from)\s+operating\s+activities\s*(?:of|was|[:=])\s*\$?([\d,]+(?:\.\d+)?)\s*(billion|million)?`),
	},
}

// ExtractMetrics pulls headline financial metrics from the filing text.
// First match per metric wins; a metric never stated is simply absent.
func ExtractMetrics(text string) map[string]float64 {
	lower := strings.ToLower(text)
	metrics := make(map[string]float64)

	for name, patterns := range metricPatterns {
		for _, re := range patterns {
			m := re.FindStringSubmatch(lower)
			if m == nil {
				continue
			}
			value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil {
				continue
			}
			if len(m) > 2 && m[2] == "billion" {
				value *= 1000
			}
			metrics[name] = value
			break
		}
	}

	if len(metrics) == 0 {
		return nil
	}
	return metrics
}
