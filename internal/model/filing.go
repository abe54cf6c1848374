package model

import (
	"regexp"
	"strings"
	"time"
)

// FilingStatus represents the current pipeline state of a filing.
type FilingStatus string

const (
	StatusDiscovered   FilingStatus = "discovered"
	StatusDownloading  FilingStatus = "downloading"
	StatusDownloaded   FilingStatus = "downloaded"
	StatusAIProcessing FilingStatus = "ai_processing"
	StatusCompleted    FilingStatus = "completed"
	StatusFailed       FilingStatus = "failed"
)

// validTransitions encodes the forward edges of the filing state machine.
// failed -> discovered (retry) is handled separately because it resets
// stage fields rather than advancing them.
var validTransitions = map[FilingStatus][]FilingStatus{
	StatusDiscovered:   {StatusDownloading},
	StatusDownloading:  {StatusDownloaded, StatusFailed},
	StatusDownloaded:   {StatusAIProcessing},
	StatusAIProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:       {StatusDiscovered},
}

// CanTransition reports whether moving from -> to is a legal state change.
func CanTransition(from, to FilingStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further pipeline work.
// failed is terminal only once the retry budget is exhausted, which the
// store checks against RetryCount.
func (s FilingStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// FormType is the SEC form category of a filing.
type FormType string

const (
	Form10K FormType = "10-K"
	Form10Q FormType = "10-Q"
	Form8K  FormType = "8-K"
	FormS1  FormType = "S-1"
)

// NormalizeFormType maps raw registry form strings onto the tracked set.
// Amendments fold into their base form; anything untracked returns false.
func NormalizeFormType(raw string) (FormType, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "10-K", "10-K/A":
		return Form10K, true
	case "10-Q", "10-Q/A":
		return Form10Q, true
	case "8-K", "8-K/A":
		return Form8K, true
	case "S-1", "S-1/A":
		return FormS1, true
	default:
		return "", false
	}
}

// Tone is the management-tone classification produced by the AI stage.
type Tone string

const (
	ToneOptimistic Tone = "optimistic"
	ToneConfident  Tone = "confident"
	ToneNeutral    Tone = "neutral"
	ToneCautious   Tone = "cautious"
	ToneConcerned  Tone = "concerned"
)

// ParseTone maps a model-produced string onto the fixed enum. Unknown
// values fall back to neutral so a sloppy response never widens the set.
func ParseTone(raw string) (Tone, bool) {
	switch Tone(strings.ToLower(strings.TrimSpace(raw))) {
	case ToneOptimistic:
		return ToneOptimistic, true
	case ToneConfident:
		return ToneConfident, true
	case ToneNeutral:
		return ToneNeutral, true
	case ToneCautious:
		return ToneCautious, true
	case ToneConcerned:
		return ToneConcerned, true
	default:
		return ToneNeutral, false
	}
}

var accessionRe = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}$`)

// ValidAccession reports whether s is a well-formed accession number
// (dddddddddd-dd-dddddd).
func ValidAccession(s string) bool {
	return accessionRe.MatchString(s)
}

// QA is one question/answer pair from the analysis stage.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Analysis holds the AI-produced fields of a filing. All fields are empty
// until the analyze stage succeeds; partial failures leave individual
// fields at their defaults with ToneExplanation recording why.
type Analysis struct {
	Summary          string             `json:"summary"`
	FeedSummary      string             `json:"feed_summary"`
	Tone             Tone               `json:"tone"`
	ToneExplanation  string             `json:"tone_explanation,omitempty"`
	Questions        []QA               `json:"questions,omitempty"`
	Tags             []string           `json:"tags,omitempty"`
	FinancialMetrics map[string]float64 `json:"financial_metrics,omitempty"`
}

// Filing is the central entity: one submitted document from the registry.
type Filing struct {
	AccessionNumber string       `json:"accession_number"`
	CIK             string       `json:"cik"`
	Ticker          string       `json:"ticker,omitempty"`
	CompanyName     string       `json:"company_name,omitempty"`
	FormType        FormType     `json:"form_type"`
	FiledAt         time.Time    `json:"filed_at"`
	IndexURL        string       `json:"index_url"`
	PrimaryDocURL   string       `json:"primary_doc_url,omitempty"`
	LocalPath       string       `json:"local_path,omitempty"`
	Status          FilingStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`

	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	DiscoveredAt      time.Time  `json:"discovered_at"`
	DownloadStartedAt *time.Time `json:"download_started_at,omitempty"`
	DownloadedAt      *time.Time `json:"downloaded_at,omitempty"`
	AIStartedAt       *time.Time `json:"ai_started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`

	BullishVotes int `json:"bullish_votes"`
	NeutralVotes int `json:"neutral_votes"`
	BearishVotes int `json:"bearish_votes"`
	CommentCount int `json:"comment_count"`
	ViewCount    int `json:"view_count"`
}

// AccessionNoDashes returns the accession number with dashes stripped,
// as used in EDGAR archive paths and the local document directory layout.
func (f *Filing) AccessionNoDashes() string {
	return strings.ReplaceAll(f.AccessionNumber, "-", "")
}
