package analyze

import (
	"context"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/pkg/anthropic"
)

const (
	maxQuestions = 5

	// Model context sent per sub-call; summary sees the full prepared
	// content, the others a front slice.
	toneContextChars = 3000
	qaContextChars   = 3000
	feedContextChars = 500
)

// defaultTonePrompt is used for forms without a form-specific tone prompt.
const defaultTonePrompt = `Analyze the tone of this SEC filing text and classify it as one of:
- OPTIMISTIC: Positive outlook, growth emphasis, confident language
- CONFIDENT: Steady progress, meeting targets, controlled growth
- NEUTRAL: Balanced reporting, factual, no strong positive/negative emphasis
- CAUTIOUS: Emphasizing challenges, conservative outlook, risk-focused
- CONCERNED: Significant risks, defensive language, problems highlighted

Text:
{{.Content}}

Respond in JSON format:
{"tone": "TONE_CLASSIFICATION", "explanation": "Brief explanation (50-100 words) of why this tone was identified"}`

const analystSystemPrompt = "You are a professional financial analyst. Provide clear, concise analysis without using emojis or informal language."

// Options configures an Analyzer.
type Options struct {
	Model           string
	Temperature     float64
	MaxContentChars int
	// MaxTokens is the summary budget when a form rule doesn't set one.
	MaxTokens int64
	Breaker   *resilience.CircuitBreaker
}

// Analyzer turns a filing's extracted text into a model.Analysis through a
// sequence of independently failing model sub-calls plus deterministic tag
// and metric extraction.
type Analyzer struct {
	client  anthropic.Client
	rules   *Rules
	opts    Options
	breaker *resilience.CircuitBreaker
}

// NewAnalyzer wires the Anthropic client to the rule set.
func NewAnalyzer(client anthropic.Client, rules *Rules, opts Options) *Analyzer {
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 45000
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &Analyzer{client: client, rules: rules, opts: opts, breaker: breaker}
}

// promptData is the template context for the rule-file prompts.
type promptData struct {
	Company   string
	FormType  string
	Content   string
	EventType string
}

// Analyze runs the full sub-call sequence for one filing. All request state
// is derived from the arguments; nothing is shared between filings. The
// summary call is required; tone, Q&A, and feed summary degrade on failure
// rather than failing the stage.
func (a *Analyzer) Analyze(ctx context.Context, f *model.Filing, text string) (*model.Analysis, error) {
	content := truncate(text, a.opts.MaxContentChars)
	fr := a.rules.ForForm(f.FormType)

	eventType := ""
	if f.FormType == model.Form8K {
		eventType = Identify8KEvent(content)
	}

	company := f.CompanyName
	if company == "" {
		company = f.Ticker
	}
	data := promptData{
		Company:   company,
		FormType:  string(f.FormType),
		Content:   content,
		EventType: eventType,
	}

	summary, err := a.summarize(ctx, fr, data)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: summary for %s", f.AccessionNumber)
	}

	analysis := &model.Analysis{Summary: summary}

	analysis.FeedSummary = a.feedSummary(ctx, summary, string(f.FormType))
	analysis.Tone, analysis.ToneExplanation = a.tone(ctx, fr, data)
	analysis.Questions = a.questions(ctx, fr, data)
	analysis.Tags = Tags(a.rules, f.FormType, summary, eventType)
	analysis.FinancialMetrics = ExtractMetrics(text)

	return analysis, nil
}

func (a *Analyzer) summarize(ctx context.Context, fr FormRules, data promptData) (string, error) {
	prompt, err := renderPrompt(fr.SummaryPrompt, data)
	if err != nil {
		return "", err
	}
	maxTokens := fr.SummaryTokens
	if maxTokens <= 0 {
		maxTokens = a.opts.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	resp, err := a.complete(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	if resp == "" {
		return "", eris.New("analyze: empty summary response")
	}
	return resp, nil
}

func (a *Analyzer) feedSummary(ctx context.Context, summary, formType string) string {
	prompt := "Based on this " + formType + " summary, create a single compelling sentence (max 15 words) that captures the most important point for investors. Focus on what matters most - performance, major changes, or key events.\n\nSummary:\n" +
		truncate(summary, feedContextChars) +
		"\n\nWrite just one clear, impactful sentence:"

	resp, err := a.complete(ctx, prompt, 50)
	if err != nil || resp == "" {
		zap.L().Warn("feed summary generation failed, falling back to first sentence",
			zap.Error(err))
		return firstSentence(summary)
	}
	resp = strings.Trim(strings.TrimSpace(resp), `"'`)
	if !strings.HasSuffix(resp, ".") {
		resp += "."
	}
	return resp
}

func (a *Analyzer) tone(ctx context.Context, fr FormRules, data promptData) (model.Tone, string) {
	promptTmpl := fr.TonePrompt
	if promptTmpl == "" {
		promptTmpl = defaultTonePrompt
	}
	data.Content = truncate(data.Content, toneContextChars)

	prompt, err := renderPrompt(promptTmpl, data)
	if err != nil {
		return model.ToneNeutral, "Analysis failed"
	}
	resp, err := a.complete(ctx, prompt, 200)
	if err != nil {
		zap.L().Warn("tone analysis failed, defaulting to neutral", zap.Error(err))
		return model.ToneNeutral, "Analysis failed: " + err.Error()
	}
	return ParseTone(resp)
}

func (a *Analyzer) questions(ctx context.Context, fr FormRules, data promptData) []model.QA {
	promptTmpl := fr.QuestionPrompt
	if promptTmpl == "" {
		return nil
	}
	data.Content = truncate(data.Content, qaContextChars)

	prompt, err := renderPrompt(promptTmpl, data)
	if err != nil {
		return nil
	}
	resp, err := a.complete(ctx, prompt, 800)
	if err != nil {
		zap.L().Warn("question generation failed", zap.Error(err))
		return nil
	}
	pairs, err := ParseQA(resp, maxQuestions)
	if err != nil {
		zap.L().Warn("question response unparseable", zap.Error(err))
		return nil
	}
	return pairs
}

// complete issues one message request through the circuit breaker and
// returns the concatenated text blocks.
func (a *Analyzer) complete(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	temp := a.opts.Temperature
	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.opts.Model,
			MaxTokens:   maxTokens,
			System:      anthropic.BuildCachedSystemBlocks(analystSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.opts.Model, "analyze")

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func renderPrompt(tmpl string, data promptData) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", eris.Wrap(err, "analyze: parse prompt template")
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", eris.Wrap(err, "analyze: render prompt template")
	}
	return sb.String(), nil
}

// truncate keeps exactly the first n characters. Filings front-load the
// narrative sections, so a front-anchored cut preserves the most useful
// text.
func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func firstSentence(s string) string {
	if idx := strings.Index(s, ". "); idx >= 0 {
		return s[:idx+1]
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
