package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/analyzer"
	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/lock"
	"hark/apps/backend/internal/middleware"
	"hark/apps/backend/internal/pipeline"
	"hark/apps/backend/internal/sink"
	"hark/apps/backend/internal/source"
)

const DefaultLockTTL = 15 * time.Minute

var ErrPassInProgress = errors.New("a pass for this workflow is already running")

var tracer = otel.Tracer("hark/processor")

type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateAnalyzing State = "analyzing"
	StateSending   State = "sending"
	StateFailed    State = "failed"
)

// Report describes one pass. State is StateIdle after a completed or skipped
// pass and the failing step's state is kept in FailedAt.
type Report struct {
	WorkflowID string                `json:"workflow_id,omitempty"`
	State      State                 `json:"state"`
	FailedAt   State                 `json:"failed_at,omitempty"`
	Skipped    bool                  `json:"skipped,omitempty"`
	Fetched    int                   `json:"fetched"`
	Analyzed   int                   `json:"analyzed"`
	Results    []sink.DeliveryResult `json:"results"`
	Checkpoint pipeline.Checkpoint   `json:"checkpoint,omitempty"`
	Committed  bool                  `json:"committed"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Delivered counts results that did not fail.
func (r *Report) Delivered() int {
	return len(r.Results) - len(sink.Failed(r.Results))
}

type WorkflowGetter interface {
	Get(ctx context.Context, id string) (*workflow.Workflow, error)
}

type SourceResolver interface {
	For(cfg source.Config) (source.Connector, error)
}

type AnalyzerResolver interface {
	For(cfg analyzer.Config) (analyzer.Analyzer, error)
}

type SinkResolver interface {
	For(cfg sink.Config) (sink.Sink, error)
}

// Processor runs workflow passes: checkpoint, fetch, analyze, send, commit.
// It holds no per-workflow state itself.
type Processor struct {
	workflows WorkflowGetter
	store     checkpoint.Store
	sources   SourceResolver
	analyzers AnalyzerResolver
	sinks     SinkResolver
	locker    lock.Locker
	lockTTL   time.Duration
	now       func() time.Time
}

type Option func(*Processor)

// WithLocker serializes passes of the same workflow.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(p *Processor) {
		p.locker = l
		if ttl > 0 {
			p.lockTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(workflows WorkflowGetter, store checkpoint.Store, sources SourceResolver, analyzers AnalyzerResolver, sinks SinkResolver, opts ...Option) *Processor {
	p := &Processor{
		workflows: workflows,
		store:     store,
		sources:   sources,
		analyzers: analyzers,
		sinks:     sinks,
		lockTTL:   DefaultLockTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process loads the workflow and runs one pass for it.
func (p *Processor) Process(ctx context.Context, workflowID string) (*Report, error) {
	wf, err := p.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}
	pl, err := wf.Config.Decode()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	return p.Run(ctx, wf.ID, pl)
}

// Run executes one pass of pl. An empty workflowID makes the pass stateless:
// the checkpoint store is neither read nor written.
func (p *Processor) Run(ctx context.Context, workflowID string, pl *workflow.Pipeline) (*Report, error) {
	if workflowID != "" {
		ctx = middleware.WithWorkflowID(ctx, workflowID)
	}
	ctx, span := tracer.Start(ctx, "processor.pass", trace.WithAttributes(attribute.String("workflow.id", workflowID)))
	defer span.End()

	report := &Report{WorkflowID: workflowID, State: StateIdle, Results: []sink.DeliveryResult{}, StartedAt: p.now()}

	if pl == nil || !pl.Runnable() {
		report.Skipped = true
		report.FinishedAt = p.now()
		span.SetAttributes(attribute.Bool("pass.skipped", true))
		slog.InfoContext(ctx, "workflow has no source or sink, skipping pass")
		return report, nil
	}

	if p.locker != nil && workflowID != "" {
		release, ok, err := p.locker.TryLock(ctx, "workflow:"+workflowID, p.lockTTL)
		if err != nil {
			return nil, p.fail(ctx, span, report, fmt.Errorf("failed to lock workflow: %w", err))
		}
		if !ok {
			span.SetAttributes(attribute.Bool("pass.locked", true))
			return nil, ErrPassInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "failed to release workflow lock", "error", err)
			}
		}()
	}

	var (
		prev    pipeline.Checkpoint
		batch   *source.Batch
		records []pipeline.Record
	)

	report.State = StateFetching
	err := p.step(ctx, "fetch", func(ctx context.Context) error {
		if workflowID != "" {
			var err error
			if prev, err = p.store.Get(ctx, workflowID); err != nil {
				return fmt.Errorf("failed to load checkpoint: %w", err)
			}
		}
		conn, err := p.sources.For(pl.Source)
		if err != nil {
			return err
		}
		if batch, err = conn.Fetch(ctx, pl.Source, prev); err != nil {
			return fmt.Errorf("fetch %s: %w", conn.Kind(), err)
		}
		records = batch.Records
		return nil
	})
	if err != nil {
		return report, p.fail(ctx, span, report, err)
	}
	report.Fetched = len(records)

	report.State = StateAnalyzing
	err = p.step(ctx, "analyze", func(ctx context.Context) error {
		if pl.Analyzer == nil {
			return nil
		}
		a, err := p.analyzers.For(pl.Analyzer)
		if err != nil {
			return err
		}
		if records, err = a.Analyze(ctx, records, pl.Analyzer); err != nil {
			return fmt.Errorf("analyze %s: %w", a.Kind(), err)
		}
		return nil
	})
	if err != nil {
		return report, p.fail(ctx, span, report, err)
	}
	report.Analyzed = len(records)

	report.State = StateSending
	err = p.step(ctx, "send", func(ctx context.Context) error {
		s, err := p.sinks.For(pl.Sink)
		if err != nil {
			return err
		}
		results, err := s.Send(ctx, records, pl.Sink)
		if err != nil {
			return fmt.Errorf("send %s: %w", s.Kind(), err)
		}
		report.Results = results
		return nil
	})
	if err != nil {
		return report, p.fail(ctx, span, report, err)
	}

	report.Checkpoint = batch.Checkpoint
	if workflowID != "" && (prev != nil || len(batch.Checkpoint) > 0) {
		if err := p.store.Put(ctx, workflowID, batch.Checkpoint); err != nil {
			return report, p.fail(ctx, span, report, fmt.Errorf("failed to save checkpoint: %w", err))
		}
		report.Committed = true
	}

	report.State = StateIdle
	report.FinishedAt = p.now()
	failed := len(sink.Failed(report.Results))
	span.SetAttributes(
		attribute.Int("pass.fetched", report.Fetched),
		attribute.Int("pass.delivered", report.Delivered()),
		attribute.Int("pass.failed", failed),
	)
	slog.InfoContext(ctx, "workflow pass finished",
		"fetched", report.Fetched,
		"delivered", report.Delivered(),
		"failed", failed,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (p *Processor) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "processor."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, span trace.Span, report *Report, err error) error {
	report.FailedAt = report.State
	report.State = StateFailed
	report.FinishedAt = p.now()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.ErrorContext(ctx, "workflow pass failed", "step", report.FailedAt, "error", err)
	return err
}
