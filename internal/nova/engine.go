// Package nova implements the Nova iteration engine: a five-stage state
// machine that dispatches problem-solving work to role-specialized agents.
package nova

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/szaher/nova/internal/agent"
	"github.com/szaher/nova/internal/ids"
	"github.com/szaher/nova/internal/iteration"
	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/session"
	"github.com/szaher/nova/internal/telemetry"
)

// Default output budgets.
const (
	DefaultStageMaxTokens   = 1000
	DefaultSummaryMaxTokens = 500
)

// Engine drives iterations through the stage machine. It is safe for
// concurrent use; distinct iterations advance independently.
type Engine struct {
	store    session.Store
	provider llm.Provider

	agentConfig      func(agent.Role) agent.Config
	parallel         bool
	filter           ExpertFilter
	maxExperts       int
	stageMaxTokens   int
	summaryMaxTokens int
	observer         StageObserver

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithAgentConfig sets the base agent configuration per role. The engine
// fills in the provider and, when zero, the output budget.
func WithAgentConfig(fn func(agent.Role) agent.Config) Option {
	return func(e *Engine) { e.agentConfig = fn }
}

// WithParallelExperts fans Domain-Expert calls out concurrently.
func WithParallelExperts(on bool) Option {
	return func(e *Engine) { e.parallel = on }
}

// WithExpertFilter replaces DefaultExpertFilter.
func WithExpertFilter(f ExpertFilter) Option {
	return func(e *Engine) {
		if f != nil {
			e.filter = f
		}
	}
}

// WithMaxExperts caps the number of required experts; 0 means no cap.
func WithMaxExperts(n int) Option {
	return func(e *Engine) { e.maxExperts = n }
}

// WithMaxTokens sets the output budget for ordinary stages and for the
// summary stage. Zero leaves a value unchanged.
func WithMaxTokens(stage, summary int) Option {
	return func(e *Engine) {
		if stage > 0 {
			e.stageMaxTokens = stage
		}
		if summary > 0 {
			e.summaryMaxTokens = summary
		}
	}
}

// WithObserver streams agent output to obs.
func WithObserver(obs StageObserver) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records stage and agent metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer records a span per stage and agent call.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an engine writing to store and calling provider.
func NewEngine(store session.Store, provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		provider:         provider,
		filter:           DefaultExpertFilter,
		stageMaxTokens:   DefaultStageMaxTokens,
		summaryMaxTokens: DefaultSummaryMaxTokens,
		logger:           slog.Default(),
		tracer:           telemetry.NewTracer(nil),
		inFlight:         make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Start creates an iteration for problem in sessionID and runs the first
// stage. If that stage fails the recorded, stage-less iteration is returned
// together with the error so the caller can retry with Continue.
func (e *Engine) Start(ctx context.Context, sessionID, problem string) (*iteration.Iteration, error) {
	if _, ok, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("start iteration in %q: %w", sessionID, ErrSessionNotFound)
	}

	// The guard is held before the iteration is visible in the store, so a
	// Continue racing with Start sees ErrIterationBusy.
	it := iteration.New(ids.New(ids.Iteration), sessionID, 0, problem, time.Now())
	if !e.acquire(it.ID) {
		return nil, ErrIterationBusy
	}
	defer e.release(it.ID)

	if err := e.store.RecordIteration(ctx, sessionID, it); err != nil {
		return nil, fmt.Errorf("record iteration: %w", err)
	}
	if _, _, err := e.store.AddMessage(ctx, sessionID, session.RoleUser, problem, map[string]any{"iteration_id": it.ID}); err != nil {
		return nil, fmt.Errorf("record problem: %w", err)
	}
	e.metrics.RecordIteration("started")
	e.logger.InfoContext(ctx, "iteration started", "session_id", sessionID, "iteration_id", it.ID, "number", it.Number)

	return e.advance(ctx, it, iteration.ProblemUnpacking)
}

// Continue runs the next pending stage. On a complete iteration it is a
// no-op that returns the stored record.
func (e *Engine) Continue(ctx context.Context, sessionID, iterationID string) (*iteration.Iteration, error) {
	if !e.acquire(iterationID) {
		return nil, ErrIterationBusy
	}
	defer e.release(iterationID)

	it, err := e.load(ctx, sessionID, iterationID)
	if err != nil {
		return nil, err
	}
	next, ok := it.NextStage()
	if !ok {
		return it, nil
	}
	return e.advance(ctx, it, next)
}

// RunStage runs stage, which must be the iteration's next pending stage.
// Completed and out-of-order stages return ErrStageSequence.
func (e *Engine) RunStage(ctx context.Context, sessionID, iterationID string, stage iteration.Stage) (*iteration.Iteration, error) {
	if !e.acquire(iterationID) {
		return nil, ErrIterationBusy
	}
	defer e.release(iterationID)

	it, err := e.load(ctx, sessionID, iterationID)
	if err != nil {
		return nil, err
	}
	next, ok := it.NextStage()
	if !ok || stage != next {
		want := "none"
		if ok {
			want = next.String()
		}
		return it, fmt.Errorf("%w: requested %s, next is %s", ErrStageSequence, stage, want)
	}
	return e.advance(ctx, it, stage)
}

// Run starts an iteration and advances it until complete or until a stage
// fails. The last recorded iteration is always returned.
func (e *Engine) Run(ctx context.Context, sessionID, problem string) (*iteration.Iteration, error) {
	it, err := e.Start(ctx, sessionID, problem)
	for err == nil && !it.Complete {
		it, err = e.Continue(ctx, sessionID, it.ID)
	}
	return it, err
}

// load fetches an iteration and enforces session ownership.
func (e *Engine) load(ctx context.Context, sessionID, iterationID string) (*iteration.Iteration, error) {
	it, ok, err := e.store.GetIteration(ctx, sessionID, iterationID)
	if err != nil {
		return nil, fmt.Errorf("get iteration: %w", err)
	}
	if ok {
		return it, nil
	}
	if _, found, err := e.store.FindIteration(ctx, iterationID); err != nil {
		return nil, fmt.Errorf("find iteration: %w", err)
	} else if found {
		return nil, fmt.Errorf("iteration %q in session %q: %w", iterationID, sessionID, ErrCrossSessionAccess)
	}
	return nil, fmt.Errorf("iteration %q: %w", iterationID, ErrIterationNotFound)
}

func (e *Engine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

// advance runs stage on a copy of it and commits the copy only on success,
// so a failed stage leaves no trace in the store.
func (e *Engine) advance(ctx context.Context, it *iteration.Iteration, stage iteration.Stage) (*iteration.Iteration, error) {
	logger := telemetry.RequestLogger(e.logger, ctx, "engine").With(
		"session_id", it.SessionID, "iteration_id", it.ID, "stage", stage.String())
	ctx, span := e.tracer.StartSpan(ctx, "stage", telemetry.StageTags(it.SessionID, it.ID, stage.String()))
	start := time.Now()
	e.notify(StageEvent{Type: EventStageStarted, IterationID: it.ID, Stage: stage})
	logger.InfoContext(ctx, "stage started")

	work := it.Clone()
	run := &stageRun{engine: e, work: work, stage: stage, tokens: &llm.TokenTracker{}}
	result, err := run.execute(ctx)
	if err == nil {
		work.Stages[stage] = iteration.StageRecord{CompletedAt: time.Now().UTC(), Result: result}
		work.Complete = len(work.Stages) == len(iteration.Stages)
		addUsage(work, run.tokens.Usage())
		if rerr := e.store.RecordIteration(ctx, work.SessionID, work); rerr != nil {
			err = fmt.Errorf("record iteration: %w", rerr)
		}
	}

	elapsed := time.Since(start)
	if err != nil {
		e.metrics.RecordStage(stage.String(), "error", elapsed)
		e.tracer.EndSpan(span, err)
		e.notify(StageEvent{Type: EventStageFailed, IterationID: it.ID, Stage: stage, Err: err})
		logger.WarnContext(ctx, "stage failed", "duration", elapsed, "error", err)
		return it, &StageError{IterationID: it.ID, Stage: stage, Err: err}
	}

	e.metrics.RecordStage(stage.String(), "ok", elapsed)
	e.tracer.EndSpan(span, nil)
	e.notify(StageEvent{Type: EventStageCompleted, IterationID: it.ID, Stage: stage})
	logger.InfoContext(ctx, "stage completed", "duration", elapsed, "agent_calls", run.tokens.Calls())

	if _, _, err := e.store.AddMessage(ctx, work.SessionID, session.RoleAssistant, stageText(work, stage),
		map[string]any{"iteration_id": work.ID, "stage": stage.String()}); err != nil {
		logger.WarnContext(ctx, "recording stage message failed", "error", err)
	}
	if work.Complete {
		e.metrics.RecordIteration("completed")
		logger.InfoContext(ctx, "iteration complete")
	}
	return work, nil
}

func addUsage(it *iteration.Iteration, u llm.Usage) {
	if u.Total() == 0 {
		return
	}
	if it.Usage == nil {
		it.Usage = &llm.Usage{}
	}
	it.Usage.InputTokens += u.InputTokens
	it.Usage.OutputTokens += u.OutputTokens
	it.Usage.CacheRead += u.CacheRead
	it.Usage.CacheWrite += u.CacheWrite
}

// stageText is the message-log rendering of a completed stage.
func stageText(it *iteration.Iteration, stage iteration.Stage) string {
	rec := it.Stages[stage]
	if rec.Result.IsMap() {
		return rec.Result.Contributions.Render()
	}
	return rec.Result.Text
}

// newAgent builds a fresh agent for one call.
func (e *Engine) newAgent(role agent.Role, domain string, maxTokens int) (agent.Agent, error) {
	var cfg agent.Config
	if e.agentConfig != nil {
		cfg = e.agentConfig(role)
	}
	cfg.Provider = e.provider
	cfg.Domain = domain
	if domain != "" && cfg.Description == "" {
		cfg.Description = fmt.Sprintf("Specialist knowledge of %s as it bears on the problem at hand.", domain)
	}
	if maxTokens > 0 {
		cfg.MaxTokens = maxTokens
	} else if cfg.MaxTokens == 0 {
		cfg.MaxTokens = e.stageMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	return agent.CreateAgent(role, cfg)
}

func (e *Engine) notify(ev StageEvent) {
	if e.observer != nil {
		e.observer(ev)
	}
}
