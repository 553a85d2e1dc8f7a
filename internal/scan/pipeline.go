package scan

import (
	"context"

	"intraday-scanner/internal/logger"
)

// Stage is one step of the scan pipeline. Stages communicate only through
// the shared per-cycle context, never by calling each other.
type Stage interface {
	Name() string
	Process(ctx context.Context, sc *Context) error
}

type pipelineEntry struct {
	stage Stage
	// signal stages run only while the cycle accepts new signals and the
	// session phase permits them; exit monitoring is outside the pipeline
	// and never gated.
	signal bool
}

// Pipeline executes a fixed ordered list of stages.
type Pipeline struct {
	entries []pipelineEntry
}

// NewPipeline composes a pipeline by explicit construction.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Append adds a stage to the end of the pipeline.
func (p *Pipeline) Append(stage Stage, signalStage bool) *Pipeline {
	p.entries = append(p.entries, pipelineEntry{stage: stage, signal: signalStage})
	return p
}

// Run executes every stage in order against the cycle context. A failed stage
// is logged and skipped; later stages still run so one stage's failure cannot
// stall exit-side work queued behind it.
func (p *Pipeline) Run(ctx context.Context, sc *Context) {
	for _, entry := range p.entries {
		if entry.signal && !(sc.AcceptNewSignals && sc.Phase.AllowsNewSignals()) {
			logger.Debug(ctx, "Skipping signal stage",
				"stage", entry.stage.Name(),
				"phase", sc.Phase.String(),
				"accept_new_signals", sc.AcceptNewSignals,
			)
			continue
		}
		if err := entry.stage.Process(ctx, sc); err != nil {
			logger.ErrorWithErr(ctx, "Pipeline stage failed", err, "stage", entry.stage.Name())
		}
	}
}
