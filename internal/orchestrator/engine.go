// Package orchestrator drives one extraction run end to end: it schedules
// stages as their dependencies resolve, applies the retry and failure
// policy, and assembles the final ExtractionResult.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/logging"
	"github.com/freightmind/extractd/internal/registry"
	"github.com/freightmind/extractd/internal/stage"
	"github.com/freightmind/extractd/internal/telemetry"
	"github.com/freightmind/extractd/internal/transcript"
)

// Config tunes the per-stage retry policy.
type Config struct {
	// MaxAttempts bounds executions per stage, including the first.
	MaxAttempts int

	// RetryBaseBackoff is the delay before the first retry; it doubles per
	// attempt.
	RetryBaseBackoff time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		RetryBaseBackoff: 500 * time.Millisecond,
	}
}

// Engine executes extraction runs against a frozen stage registry.
//
// An Engine is safe for concurrent runs: all per-run state lives in the
// run's own Context.
type Engine struct {
	registry *registry.Registry
	order    []string
	cfg      Config
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	tracer   oteltrace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the Prometheus instruments the engine records to.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer for run and stage spans.
func WithTracer(t oteltrace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New builds an Engine. The registry's execution order is resolved here so
// cyclic or unknown dependencies fail at startup, never mid-run.
func New(reg *registry.Registry, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryBaseBackoff <= 0 {
		cfg.RetryBaseBackoff = DefaultConfig().RetryBaseBackoff
	}

	order, err := reg.ResolveOrder()
	if err != nil {
		return nil, fmt.Errorf("resolving stage order: %w", err)
	}

	e := &Engine{
		registry: reg,
		order:    order,
		cfg:      cfg,
		logger:   logging.Nop(),
		tracer:   noop.NewTracerProvider().Tracer("extractd"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// runState collects stage outcomes as goroutines terminate.
type runState struct {
	mu             sync.Mutex
	outcomes       map[string]StageOutcome
	criticalFailed bool
	bestEffortLost bool
}

func (rs *runState) record(o StageOutcome, critical bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.outcomes[o.Stage] = o
	if o.Status == StageFailed {
		if critical {
			rs.criticalFailed = true
		} else {
			rs.bestEffortLost = true
		}
	}
}

// Run executes one extraction run. It returns once every reachable stage
// has terminated; per-stage errors are folded into the result's status and
// outcomes rather than returned. The only errors returned here are invalid
// inputs.
func (e *Engine) Run(ctx context.Context, t *transcript.Transcript, meta transcript.RunMetadata) (*ExtractionResult, error) {
	if t == nil {
		return nil, errors.New("transcript is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	ctx = logging.WithRunID(ctx, runID.String())
	ctx = logging.WithCallID(ctx, meta.CallID)
	ctx = logging.WithOrgID(ctx, meta.OrgID)

	ctx, span := e.tracer.Start(ctx, "extraction.run", oteltrace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.String("call.id", meta.CallID),
		attribute.String("call.type", string(meta.CallType)),
	))
	defer span.End()

	started := time.Now()
	e.logger.Info(ctx, "extraction run starting",
		zap.Int("stages", len(e.order)),
		zap.Int("utterances", len(t.Utterances)))

	rc := stage.NewContext(t, meta, e.order)
	state := &runState{outcomes: make(map[string]StageOutcome, len(e.order))}

	var wg sync.WaitGroup
	for _, name := range e.order {
		s, ok := e.registry.Get(name)
		if !ok {
			// ResolveOrder only returns registered names.
			continue
		}
		wg.Add(1)
		go func(s stage.Stage) {
			defer wg.Done()
			e.runStage(ctx, rc, s, state)
		}(s)
	}
	wg.Wait()

	result := e.assemble(rc, runID, meta, state, started)

	span.SetAttributes(attribute.String("run.status", string(result.Status)))
	if result.Status == RunFailed {
		span.SetStatus(codes.Error, "critical stage failed")
	}
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(string(result.Status)).Inc()
		e.metrics.RunDuration.Observe(result.Duration.Seconds())
		e.metrics.TokensUsed.WithLabelValues("input").Add(float64(result.Usage.InputTokens))
		e.metrics.TokensUsed.WithLabelValues("output").Add(float64(result.Usage.OutputTokens))
		e.metrics.CostUSD.Add(result.Usage.EstimatedCostUSD)
	}
	e.logger.Info(ctx, "extraction run finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
		zap.Int64("input_tokens", result.Usage.InputTokens),
		zap.Int64("output_tokens", result.Usage.OutputTokens))

	return result, nil
}

// runStage waits for the stage's dependencies, applies the skip rule, and
// drives the retry loop.
func (e *Engine) runStage(ctx context.Context, rc *stage.Context, s stage.Stage, state *runState) {
	name := s.Name()
	started := time.Now()

	for _, dep := range s.Dependencies() {
		_, present, err := rc.WaitFor(ctx, dep)
		if err != nil {
			e.finishStage(ctx, rc, state, StageOutcome{
				Stage: name, Status: StageFailed, Duration: time.Since(started),
				Err: err.Error(),
			}, s.Critical())
			return
		}
		if !present && e.isCritical(dep) {
			// The dependency failed and was critical: this stage and its
			// transitive dependents are unreachable. A best-effort
			// dependency's absence is an accepted outcome; the stage runs
			// with the slot empty.
			e.logger.Debug(ctx, "stage skipped",
				zap.String("stage", name),
				zap.String("failed_dependency", dep))
			if e.metrics != nil {
				e.metrics.StagesSkipped.WithLabelValues(name).Inc()
			}
			e.finishStage(ctx, rc, state, StageOutcome{
				Stage: name, Status: StageSkipped, Duration: time.Since(started),
				Err: fmt.Sprintf("dependency %q failed", dep),
			}, s.Critical())
			return
		}
	}

	out, attempts, err := e.executeWithRetry(ctx, rc, s)
	duration := time.Since(started)

	if err != nil {
		e.logger.Error(ctx, "stage failed permanently",
			zap.String("stage", name),
			zap.Int("attempts", attempts),
			zap.Bool("critical", s.Critical()),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.StageDuration.WithLabelValues(name, string(StageFailed)).Observe(duration.Seconds())
		}
		e.finishStage(ctx, rc, state, StageOutcome{
			Stage: name, Status: StageFailed, Attempts: attempts, Duration: duration,
			Err: err.Error(),
		}, s.Critical())
		return
	}

	if err := rc.SetOutput(name, out); err != nil {
		// A stage writing twice is a programming error in the stage, not a
		// run condition.
		e.logger.Error(ctx, "stage output rejected",
			zap.String("stage", name), zap.Error(err))
		e.finishStage(ctx, rc, state, StageOutcome{
			Stage: name, Status: StageFailed, Attempts: attempts, Duration: duration,
			Err: err.Error(),
		}, s.Critical())
		return
	}

	e.logger.Debug(ctx, "stage succeeded",
		zap.String("stage", name),
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration))
	if e.metrics != nil {
		e.metrics.StageDuration.WithLabelValues(name, string(StageSucceeded)).Observe(duration.Seconds())
	}
	state.record(StageOutcome{
		Stage: name, Status: StageSucceeded, Attempts: attempts, Duration: duration,
	}, s.Critical())
}

// finishStage records a terminal non-success outcome and releases the
// stage's slot so dependents unblock. The outcome is recorded first so a
// dependent that observes the absent slot also observes why.
func (e *Engine) finishStage(ctx context.Context, rc *stage.Context, state *runState, o StageOutcome, critical bool) {
	state.record(o, critical)
	if err := rc.MarkAbsent(o.Stage); err != nil {
		e.logger.Warn(ctx, "marking stage absent",
			zap.String("stage", o.Stage), zap.Error(err))
	}
}

// executeWithRetry runs the stage up to MaxAttempts times with exponential
// backoff between retryable failures.
func (e *Engine) executeWithRetry(ctx context.Context, rc *stage.Context, s stage.Stage) (stage.Output, int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attemptCtx, span := e.tracer.Start(ctx, "extraction.stage."+s.Name(), oteltrace.WithAttributes(
			attribute.String("stage.name", s.Name()),
			attribute.Int("stage.attempt", attempt),
		))
		out, err := s.Execute(attemptCtx, rc)
		span.End()

		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		if !inference.Retryable(err) || attempt == e.cfg.MaxAttempts {
			return nil, attempt, lastErr
		}

		e.logger.Warn(ctx, "stage attempt failed, retrying",
			zap.String("stage", s.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.StageRetries.WithLabelValues(s.Name()).Inc()
		}
		if err := sleep(ctx, e.cfg.RetryBaseBackoff<<(attempt-1)); err != nil {
			return nil, attempt, err
		}
	}
	return nil, e.cfg.MaxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) isCritical(name string) bool {
	s, ok := e.registry.Get(name)
	return ok && s.Critical()
}

// assemble freezes the run into its terminal ExtractionResult.
func (e *Engine) assemble(rc *stage.Context, runID uuid.UUID, meta transcript.RunMetadata, state *runState, started time.Time) *ExtractionResult {
	state.mu.Lock()
	defer state.mu.Unlock()

	result := &ExtractionResult{
		RunID:     runID,
		CallID:    meta.CallID,
		Outputs:   make(map[string]stage.Output),
		Outcomes:  make([]StageOutcome, 0, len(e.order)),
		Usage:     rc.Usage(),
		StartedAt: started,
		Duration:  time.Since(started),
	}

	for _, name := range e.order {
		if o, ok := state.outcomes[name]; ok {
			result.Outcomes = append(result.Outcomes, o)
		}
		if out, ok := rc.Output(name); ok {
			result.Outputs[name] = out
		}
	}

	switch {
	case state.criticalFailed:
		result.Status = RunFailed
	case state.bestEffortLost:
		result.Status = RunPartial
	default:
		result.Status = RunComplete
	}

	if report := result.Validation(); report != nil {
		result.Warnings = report.Warnings
		result.ShouldGenerateRateConfirmation = report.RateConfirmationReady &&
			result.Status != RunFailed
	}
	return result
}
