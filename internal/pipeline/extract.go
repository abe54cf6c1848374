package pipeline

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// MinExtractedChars is the floor below which an extracted document is
// considered unusable for analysis.
const MinExtractedChars = 100

var (
	secHeaderRe  = regexp.MustCompile(`(?s)<(?:SEC|IMS)-HEADER>.*?</(?:SEC|IMS)-HEADER>`)
	secDocTagRe  = regexp.MustCompile(`(?i)</?(?:SEC-DOCUMENT|DOCUMENT|TYPE|SEQUENCE|FILENAME|DESCRIPTION|TEXT)[^>]*>`)
	pageBreakRe  = regexp.MustCompile(`(?i)<PAGE>`)
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	multiSpaceRe = regexp.MustCompile(`[ \t]+`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
)

// ExtractText turns a raw EDGAR document into analysis-ready plain text.
// HTML and iXBRL documents have markup stripped; full-text submission
// wrappers have their SGML headers removed. Returns an error when the
// result is too short to analyze.
func ExtractText(raw string) (string, error) {
	text := secHeaderRe.ReplaceAllString(raw, "")
	text = secDocTagRe.ReplaceAllString(text, "")
	text = pageBreakRe.ReplaceAllString(text, "")

	if looksLikeHTML(text) {
		extracted, err := extractHTML(text)
		if err != nil {
			return "", eris.Wrap(err, "extract: parse html")
		}
		text = extracted
	}

	text = controlRe.ReplaceAllString(text, " ")
	text = normalizeWhitespace(text)

	if len(text) < MinExtractedChars {
		return "", eris.Errorf("extract: document too short (%d chars)", len(text))
	}
	return text, nil
}

func looksLikeHTML(s string) bool {
	probe := strings.ToLower(s)
	if len(probe) > 2048 {
		probe = probe[:2048]
	}
	return strings.Contains(probe, "<html") ||
		strings.Contains(probe, "<body") ||
		strings.Contains(probe, "<div") ||
		strings.Contains(probe, "<table") ||
		strings.Contains(probe, "<p>") ||
		strings.Contains(probe, "<p ")
}

// extractHTML walks the parse tree collecting text nodes, skipping
// script/style/head content. iXBRL ix: wrapper elements contribute their
// inner text like any other element.
func extractHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "link", "meta", "title", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return b.String(), nil
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "tr", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "table", "section":
		return true
	}
	return false
}

// normalizeWhitespace collapses runs of spaces within lines, trims each
// line, and caps consecutive blank lines at one.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiBlankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
