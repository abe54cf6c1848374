// Package analyze produces the AI-derived fields of a filing: narrative
// summary, feed one-liner, tone classification, Q&A pairs, deterministic
// tags, and regex-extracted financial metrics. Prompt and tag rules are
// data, loadable from a YAML file with embedded defaults.
package analyze

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// TagRule adds Tag when every keyword in All and at least one keyword in
// Any (when non-empty) appears in the summary, case-insensitively.
type TagRule struct {
	All []string `yaml:"all"`
	Any []string `yaml:"any"`
	Tag string   `yaml:"tag"`
}

// FormRules holds the per-form-type prompt guidance and tag rules.
type FormRules struct {
	SummaryPrompt  string    `yaml:"summary_prompt"`
	SummaryTokens  int64     `yaml:"summary_tokens"`
	TonePrompt     string    `yaml:"tone_prompt"`
	QuestionPrompt string    `yaml:"question_prompt"`
	TagRules       []TagRule `yaml:"tag_rules"`
	FallbackTag    string    `yaml:"fallback_tag"`
	MaxTags        int       `yaml:"max_tags"`
}

// Rules is the full rule set keyed by form type, with a generic fallback.
type Rules struct {
	Forms   map[string]FormRules `yaml:"forms"`
	Generic FormRules            `yaml:"generic"`
}

// ForForm returns the rules for a form type, falling back to Generic.
func (r *Rules) ForForm(form model.FormType) FormRules {
	if fr, ok := r.Forms[string(form)]; ok {
		return fr
	}
	return r.Generic
}

// LoadRules parses the embedded defaults and, when path is non-empty,
// overlays the file on top. Unknown form keys in the file are accepted.
func LoadRules(path string) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal([]byte(defaultRulesYAML), &rules); err != nil {
		return nil, eris.Wrap(err, "analyze: parse default rules")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "analyze: read rules file %s", path)
		}
		var override Rules
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, eris.Wrapf(err, "analyze: parse rules file %s", path)
		}
		for form, fr := range override.Forms {
			rules.Forms[form] = fr
		}
		if override.Generic.SummaryPrompt != "" {
			rules.Generic = override.Generic
		}
	}

	return &rules, nil
}

// defaultRulesYAML carries the built-in prompt guidance and tag rules.
// Prompts receive the company name and form type via templating in the
// analyzer; tag rules match against the generated summary.
const defaultRulesYAML = `
forms:
  "10-K":
    summary_prompt: |
      You are a financial analyst. Create a comprehensive summary of this {{.Company}} annual report (10-K).

      Focus on these key areas:
      1. Annual performance highlights and key metrics
      2. Geographic performance (especially China, India, emerging markets if discussed)
      3. Business segment performance
      4. Strategic investments and R&D focus (especially AI and technology initiatives)
      5. Management's forward-looking statements and guidance
      6. Major risks and challenges faced during the year
      7. Capital allocation decisions (dividends, buybacks, acquisitions)

      Content:
      {{.Content}}

      Write a professional summary (400-500 words) that helps investors understand the company's annual performance and future direction.
    summary_tokens: 1200
    question_prompt: |
      Based on this {{.Company}} annual report, generate 4-5 key questions an investor would ask, with answers from the filing.

      Focus on:
      1. Annual performance vs prior year
      2. Geographic and segment performance
      3. Strategic initiatives and investments
      4. Outlook and guidance
      5. Major risks or challenges

      Content:
      {{.Content}}

      Format as a JSON array of {"question": "...", "answer": "..."} objects with factual answers (50-100 words each).
    tag_rules:
      - {all: [record, revenue], tag: "#RecordRevenue"}
      - {all: [growth], tag: "#Growth"}
      - {any: [decline, decrease], tag: "#Challenges"}
      - {all: [china], any: [challenge, headwind], tag: "#ChinaChallenges"}
      - {all: [china], tag: "#ChinaGrowth"}
      - {all: [india], tag: "#IndiaGrowth"}
      - {any: [" ai ", artificial intelligence], tag: "#AIInvestment"}
      - {any: [acquisition, "m&a"], tag: "#M&A"}
      - {all: [dividend], tag: "#Dividend"}
      - {all: [buyback], tag: "#Buyback"}
    fallback_tag: "#AnnualReport"
    max_tags: 5
  "10-Q":
    summary_prompt: |
      You are a financial analyst. Create a focused quarterly summary of this {{.Company}} 10-Q filing.

      Focus on:
      1. Quarterly results vs expectations (if mentioned)
      2. Key growth drivers this quarter
      3. Margin changes and profitability trends
      4. Updated guidance or outlook changes
      5. Quarter-over-quarter and year-over-year comparisons
      6. Significant events during the quarter
      7. Cash flow and balance sheet highlights

      Content:
      {{.Content}}

      Write a concise but comprehensive summary (300-400 words) that helps investors understand quarterly performance and trends.
    summary_tokens: 1000
    question_prompt: |
      Based on this {{.Company}} quarterly report, generate 3-4 key questions about:

      1. Quarterly performance vs expectations
      2. Growth drivers this quarter
      3. Margin and profitability trends
      4. Updated outlook or guidance

      Content:
      {{.Content}}

      Format as a JSON array of {"question": "...", "answer": "..."} objects with answers from the filing (50-100 words each).
    tag_rules:
      - {all: [beat, expectation], tag: "#BeatExpectations"}
      - {all: [miss, expectation], tag: "#MissedExpectations"}
      - {all: [margin, expansion], tag: "#MarginExpansion"}
      - {all: [cloud, growth], tag: "#CloudGrowth"}
      - {all: [" ai ", demand], tag: "#AIdemand"}
      - {all: [guidance], any: [raise, up], tag: "#GuidanceUp"}
    fallback_tag: "#QuarterlyResults"
    max_tags: 5
  "8-K":
    summary_prompt: |
      You are a financial analyst. Create a quick summary of this {{.Company}} 8-K filing.

      This appears to be about: {{.EventType}}

      Focus on:
      1. What happened (the specific event or announcement)
      2. When it happened or will happen
      3. Who is involved (people, companies, divisions)
      4. Why it matters to investors
      5. Immediate or expected impact

      Content:
      {{.Content}}

      Write a clear, factual summary (200-300 words) that helps investors quickly understand this event.
    summary_tokens: 800
    tone_prompt: |
      This is an 8-K filing about: {{.EventType}}

      Analyze the tone considering the nature of this event. For 8-K filings, tone should reflect:
      - OPTIMISTIC: Positive developments (promotions, good earnings, expansion)
      - CONFIDENT: Planned transitions, meeting expectations
      - NEUTRAL: Routine disclosures, regular updates
      - CAUTIOUS: Challenges being addressed, transitions
      - CONCERNED: Negative events, departures, missed targets

      Text:
      {{.Content}}

      Respond in JSON format:
      {"tone": "TONE_CLASSIFICATION", "explanation": "Brief explanation (50-100 words)"}
    question_prompt: |
      Based on this {{.Company}} 8-K filing about {{.EventType}}, generate 3-4 key questions:

      1. What exactly happened?
      2. When does it take effect?
      3. Why did this occur?
      4. What is the impact?

      Content:
      {{.Content}}

      Format as a JSON array of {"question": "...", "answer": "..."} objects with short, factual answers (30-70 words each).
    tag_rules:
      - {all: [note], any: [issuance, issue], tag: "#DebtOffering"}
      - {all: [ceo], tag: "#CEOChange"}
      - {all: [cfo], tag: "#CFOChange"}
      - {all: [internal, promotion], tag: "#InternalPromotion"}
      - {all: [external, hire], tag: "#ExternalHire"}
    fallback_tag: "#CorporateUpdate"
    max_tags: 4
  "S-1":
    summary_prompt: |
      You are a financial analyst. Create an IPO overview of this {{.Company}} S-1 filing.

      Focus on:
      1. Company business model and value proposition
      2. Financial snapshot (revenue, profitability, growth rates)
      3. Target valuation and share price range (if disclosed)
      4. Use of proceeds from the IPO
      5. Key risk factors specific to this business
      6. Competitive advantages and market position
      7. Management team and major shareholders

      Content:
      {{.Content}}

      Write a comprehensive IPO summary (400-500 words) that helps investors evaluate this offering.
    summary_tokens: 1200
    tone_prompt: |
      Analyze the tone of this IPO S-1 filing. For IPO filings, assess:
      - OPTIMISTIC: Strong growth story, market leadership claims, aggressive projections
      - CONFIDENT: Solid fundamentals, clear path to profitability, reasonable claims
      - NEUTRAL: Balanced presentation of opportunities and risks
      - CAUTIOUS: Heavy emphasis on risks, conservative projections
      - CONCERNED: Significant losses, unclear path to profitability, many risk factors

      Text:
      {{.Content}}

      Respond in JSON format:
      {"tone": "TONE_CLASSIFICATION", "explanation": "Analysis of the IPO narrative and tone (50-100 words)"}
    question_prompt: |
      Based on this {{.Company}} S-1 IPO filing, generate 4-5 key investor questions:

      1. Why go public now?
      2. Is the business model proven?
      3. What is the path to profitability?
      4. What are the main risk factors?
      5. How is the valuation justified?

      Content:
      {{.Content}}

      Format as a JSON array of {"question": "...", "answer": "..."} objects focused on IPO-specific concerns.
    tag_rules:
      - {tag: "#IPO"}
      - {all: [nyse], tag: "#NYSEListing"}
      - {all: [nasdaq], tag: "#NASDAQListing"}
      - {all: [social media], tag: "#SocialMedia"}
      - {any: [technology, tech], tag: "#TechIPO"}
      - {all: [biotech], tag: "#BiotechIPO"}
      - {all: [fintech], tag: "#FintechIPO"}
    fallback_tag: "#IPO"
    max_tags: 4
generic:
  summary_prompt: |
    Create a summary of this {{.FormType}} filing from {{.Company}}.

    Content:
    {{.Content}}

    Write a clear summary (300-400 words) covering the key points.
  summary_tokens: 1000
  question_prompt: |
    Generate 3-4 key questions about this {{.FormType}} filing from {{.Company}}.

    Content:
    {{.Content}}

    Format as a JSON array of {"question": "...", "answer": "..."} objects.
  tag_rules:
    - {all: [revenue], tag: "#Revenue"}
    - {all: [earnings], tag: "#Earnings"}
    - {all: [growth], tag: "#Growth"}
    - {all: [acquisition], tag: "#M&A"}
    - {all: [dividend], tag: "#Dividend"}
    - {all: [buyback], tag: "#Buyback"}
    - {all: [guidance], tag: "#Guidance"}
    - {all: [restructuring], tag: "#Restructuring"}
  fallback_tag: "#Update"
  max_tags: 5
`
