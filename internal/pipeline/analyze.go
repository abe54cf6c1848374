package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/internal/store"
)

// FilingAnalyzer produces a complete analysis for a filing's extracted
// text. *analyze.Analyzer satisfies this.
type FilingAnalyzer interface {
	Analyze(ctx context.Context, f *model.Filing, text string) (*model.Analysis, error)
}

// ProcessorOptions tunes the analyze stage.
type ProcessorOptions struct {
	MinTextChars int
	MaxAttempts  int
	RetryBase    time.Duration
}

// Processor executes analyze tasks: read the downloaded document, extract
// its text, run AI analysis, and persist the result.
type Processor struct {
	store    store.Store
	analyzer FilingAnalyzer
	opts     ProcessorOptions
}

func NewProcessor(st store.Store, analyzer FilingAnalyzer, opts ProcessorOptions) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Minute
	}
	return &Processor{store: st, analyzer: analyzer, opts: opts}
}

// Stage reports the queue stage this worker consumes.
func (p *Processor) Stage() model.TaskStage { return model.StageAnalyze }

// Process handles one claimed analyze task. ErrWrongStatus means another
// worker owns the filing or it already completed; the task completes as a
// no-op either way.
func (p *Processor) Process(ctx context.Context, task model.Task) error {
	filing, err := p.store.GetFiling(ctx, task.AccessionNumber)
	if err != nil {
		return err
	}
	if filing == nil {
		zap.L().Warn("analyze task for unknown filing",
			zap.String("accession", task.AccessionNumber))
		return p.store.CompleteTask(ctx, task.ID)
	}

	err = p.store.TransitionFiling(ctx, filing.AccessionNumber,
		model.StatusDownloaded, model.StatusAIProcessing)
	if errors.Is(err, store.ErrWrongStatus) {
		zap.L().Debug("filing not in downloaded state, skipping analysis",
			zap.String("accession", filing.AccessionNumber),
			zap.String("status", string(filing.Status)))
		return p.store.CompleteTask(ctx, task.ID)
	}
	if err != nil {
		return err
	}

	if err := p.analyzeFiling(ctx, filing); err != nil {
		p.fail(ctx, filing, err)
		return p.store.CompleteTask(ctx, task.ID)
	}
	return p.store.CompleteTask(ctx, task.ID)
}

func (p *Processor) analyzeFiling(ctx context.Context, filing *model.Filing) error {
	if filing.LocalPath == "" {
		return eris.Errorf("analyze: no local document for %s", filing.AccessionNumber)
	}

	raw, err := os.ReadFile(filing.LocalPath)
	if err != nil {
		return eris.Wrapf(err, "analyze: read %s", filing.LocalPath)
	}

	text, err := ExtractText(string(raw))
	if err != nil {
		return eris.Wrapf(err, "analyze: extract %s", filing.AccessionNumber)
	}
	if len(text) < p.opts.MinTextChars {
		return eris.Errorf("analyze: extracted text too short (%d < %d chars) for %s",
			len(text), p.opts.MinTextChars, filing.AccessionNumber)
	}

	started := time.Now()
	analysis, err := p.analyzer.Analyze(ctx, filing, text)
	if err != nil {
		return err
	}

	zap.L().Info("filing analyzed",
		zap.String("accession", filing.AccessionNumber),
		zap.String("form", string(filing.FormType)),
		zap.String("tone", string(analysis.Tone)),
		zap.Int("tags", len(analysis.Tags)),
		zap.Duration("took", time.Since(started)))

	return p.store.CompleteFiling(ctx, filing.AccessionNumber, analysis)
}

func (p *Processor) fail(ctx context.Context, filing *model.Filing, cause error) {
	nextRetry := resilience.NextRetryAt(time.Now().UTC(), filing.RetryCount+1, p.opts.RetryBase)
	zap.L().Warn("analyze stage failed",
		zap.String("accession", filing.AccessionNumber),
		zap.String("class", resilience.ClassifyError(cause)),
		zap.Time("next_retry_at", nextRetry),
		zap.Error(cause))

	if err := p.store.FailFiling(ctx, filing.AccessionNumber, cause.Error(), nextRetry); err != nil {
		zap.L().Error("failed to record analyze failure",
			zap.String("accession", filing.AccessionNumber), zap.Error(err))
	}
}
