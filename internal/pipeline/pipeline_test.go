package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *model.HarvestRun) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *model.HarvestRun) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if !New(WithContinueOnError(true)).continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: PhaseCatalog})
	p.AddSteps(&mockStep{name: PhaseDownload}, &mockStep{name: PhaseExtract})

	if p.StepCount() != 3 {
		t.Fatalf("expected 3 steps, got %d", p.StepCount())
	}
	expected := []string{PhaseCatalog, PhaseDownload, PhaseExtract}
	for i, name := range p.StepNames() {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		p := New(WithLogger(quietLogger()))
		for _, name := range []string{"a", "b"} {
			p.AddStep(&mockStep{
				name: name,
				doFunc: func(_ context.Context, _ *model.HarvestRun) error {
					order = append(order, name)
					return nil
				},
			})
		}

		run := model.NewHarvestRun("run", "standard-ebooks")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 2 || order[0] != "a" || order[1] != "b" {
			t.Errorf("expected [a b], got %v", order)
		}
		if len(run.PerformedPhases) != 2 {
			t.Errorf("expected 2 performed phases, got %v", run.PerformedPhases)
		}
	})

	t.Run("stops on error by default", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("catalog missing")
		second := &mockStep{name: "second"}
		p := New(WithLogger(quietLogger()))
		p.AddSteps(&mockStep{
			name: "first",
			doFunc: func(_ context.Context, _ *model.HarvestRun) error {
				return boom
			},
		}, second)

		run := model.NewHarvestRun("run", "src")
		err := p.Execute(context.Background(), run)
		if !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
		if second.callCount != 0 {
			t.Error("expected second step not to run")
		}
		if !errors.Is(run.Error, boom) {
			t.Errorf("expected run error to be recorded, got %v", run.Error)
		}
		if len(run.PerformedPhases) != 0 {
			t.Errorf("expected no performed phases, got %v", run.PerformedPhases)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}
		p := New(WithLogger(quietLogger()), WithContinueOnError(true))
		p.AddSteps(&mockStep{
			name: "first",
			doFunc: func(_ context.Context, _ *model.HarvestRun) error {
				return errors.New("partial")
			},
		}, second)

		run := model.NewHarvestRun("run", "src")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.callCount != 1 {
			t.Error("expected second step to run")
		}
		if run.Error == nil {
			t.Error("expected first error to be recorded")
		}
	})

	t.Run("cancelled context stops before the next step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		second := &mockStep{name: "second"}
		p := New(WithLogger(quietLogger()))
		p.AddSteps(&mockStep{
			name: "first",
			doFunc: func(_ context.Context, _ *model.HarvestRun) error {
				cancel()
				return nil
			},
		}, second)

		run := model.NewHarvestRun("run", "src")
		err := p.Execute(ctx, run)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step not to run")
		}
		if !run.TimedOut {
			t.Error("expected run to be marked as timed out")
		}
	})
}
