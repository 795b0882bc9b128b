package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Step is one harvest phase. Steps run in the order they were added and
// share a single HarvestRun.
//
// Design decision: Steps are values rather than funcs so each carries its
// own fetcher, paths and options, and its Name doubles as the phase name
// the CLI accepts.
type Step interface {
	// Do executes the step. Per-item problems are recorded on the run and
	// do not fail the step; a returned error stops the pipeline.
	Do(ctx context.Context, run *model.HarvestRun) error

	Name() string
}

// Pipeline runs harvest phases in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
//
// Design decision: The default is to stop, because the phases depend on
// each other: an extract after a failed download only re-reads what is
// already on disk. Continuing is useful when each phase's leftovers are
// still worth processing.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence.
//
// Design decision: We check ctx before each step rather than during it;
// steps stop their own work on cancellation and leave what they finished on
// disk, so the next run resumes from there.
func (p *Pipeline) Execute(ctx context.Context, run *model.HarvestRun) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("harvest cancelled before phase", "phase", step.Name(), "reason", err)
			run.TimedOut = true
			return err
		}

		started := time.Now()
		p.logger.Info("phase started", "phase", step.Name(), "source", run.Source, "run", run.ID)

		err := step.Do(ctx, run)
		elapsed := time.Since(started).Round(time.Millisecond)
		if err != nil {
			p.logger.Error("phase failed",
				"phase", step.Name(),
				"source", run.Source,
				"elapsed", elapsed,
				"error", err,
			)
			run.Error = err
			if ctx.Err() != nil {
				run.TimedOut = true
			}
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Info("phase finished",
				"phase", step.Name(),
				"elapsed", elapsed,
				"failures", len(run.Failures),
			)
		}

		run.PerformedPhases = append(run.PerformedPhases, step.Name())
	}

	return nil
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the phase names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
