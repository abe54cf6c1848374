package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_HTML(t *testing.T) {
	raw := `<html><head><title>10-K</title><script>var x = 1;</script>
<style>.a { color: red; }</style></head>
<body>
<div>Total revenues of $94.9 billion.</div>
<p>Net income    was &amp; remained strong across all segments this fiscal year.</p>
<table><tr><td>Assets</td><td>$352.6 billion</td></tr></table>
</body></html>`

	text, err := ExtractText(raw)
	require.NoError(t, err)

	assert.Contains(t, text, "Total revenues of $94.9 billion.")
	assert.Contains(t, text, "Net income was & remained strong")
	assert.Contains(t, text, "Assets")
	assert.NotContains(t, text, "var x = 1")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<div>")
}

func TestExtractText_StripsSubmissionHeader(t *testing.T) {
	raw := `<SEC-HEADER>ACCESSION NUMBER: 0000320193-25-000078
CONFORMED SUBMISSION TYPE: 8-K</SEC-HEADER>
<DOCUMENT>
<TYPE>8-K
<TEXT>
` + strings.Repeat("Material definitive agreement entered into with a supplier. ", 5) + `
</TEXT>
</DOCUMENT>`

	text, err := ExtractText(raw)
	require.NoError(t, err)

	assert.NotContains(t, text, "ACCESSION NUMBER")
	assert.NotContains(t, text, "<TYPE>")
	assert.Contains(t, text, "Material definitive agreement")
}

func TestExtractText_iXBRL(t *testing.T) {
	raw := `<html><body><div>
<ix:nonNumeric name="dei:CompanyName">Apple Inc.</ix:nonNumeric>
reported revenue growth across all geographic segments during the period,
with particular strength in services and wearables.
</div></body></html>`

	text, err := ExtractText(raw)
	require.NoError(t, err)
	assert.Contains(t, text, "Apple Inc.")
	assert.Contains(t, text, "revenue growth")
}

func TestExtractText_TooShort(t *testing.T) {
	_, err := ExtractText("<html><body><p>tiny</p></body></html>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestExtractText_PlainText(t *testing.T) {
	raw := "Line one with   extra   spaces.\r\n\r\n\r\n\r\nLine two after many blanks." +
		strings.Repeat(" More filler text to clear the length floor.", 3)

	text, err := ExtractText(raw)
	require.NoError(t, err)

	assert.Contains(t, text, "Line one with extra spaces.")
	assert.NotContains(t, text, "\n\n\n")
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a b  \n\n\n\n  c\td  ")
	assert.Equal(t, "a b\n\nc d", got)
}
