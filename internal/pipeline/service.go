// Package pipeline runs one question through schema lookup, prompt building,
// SQL generation, execution and rendering.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/present"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/voice"
)

type State string

const (
	StateIdle         State = "idle"
	StateSchemaReady  State = "schema_ready"
	StatePromptBuilt  State = "prompt_built"
	StateSQLGenerated State = "sql_generated"
	StateExecuted     State = "executed"
	StateRendered     State = "rendered"
	StateFailed       State = "failed"
)

type SchemaProvider interface {
	Get(ctx context.Context) (schema.Description, error)
}

type PromptBuilder interface {
	Build(question string, description schema.Description) (string, error)
}

type SQLGenerator interface {
	GenerateSQL(ctx context.Context, prompt string) (nl2sql.Result, error)
}

type Policy struct {
	AllowMutations bool
	// RowLimit caps every result. Zero means unlimited.
	RowLimit int
}

type Dependencies struct {
	Schemas   SchemaProvider
	Prompts   PromptBuilder
	Generator SQLGenerator
	Executor  query.Engine
	Policy    Policy
	Logger    *slog.Logger
}

type Options struct {
	Chart present.ChartKind
	// NoChart skips chart mapping entirely.
	NoChart bool
	// AllowMutations is the caller's opt-in; the policy must allow it too.
	AllowMutations bool
	RowLimit       int
}

type StageTiming struct {
	Stage    State         `json:"stage"`
	Duration time.Duration `json:"duration"`
}

type Outcome struct {
	RequestID        string              `json:"request_id"`
	Question         string              `json:"question"`
	State            State               `json:"state"`
	Generation       nl2sql.Result       `json:"generation"`
	Result           query.Result        `json:"-"`
	Table            present.TabularView `json:"table"`
	Chart            *present.ChartData  `json:"chart,omitempty"`
	ChartUnavailable string              `json:"chart_unavailable,omitempty"`
	Stages           []StageTiming       `json:"stages"`
	Failure          *Failure            `json:"-"`
}

type Service struct {
	deps   Dependencies
	logger *slog.Logger
}

func NewService(deps Dependencies) (*Service, error) {
	switch {
	case deps.Schemas == nil:
		return nil, errors.New("schema provider is required")
	case deps.Prompts == nil:
		return nil, errors.New("prompt builder is required")
	case deps.Generator == nil:
		return nil, errors.New("sql generator is required")
	case deps.Executor == nil:
		return nil, errors.New("executor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{deps: deps, logger: logger}, nil
}

// run tracks one request through the state machine.
type run struct {
	service *Service
	ctx     context.Context
	outcome Outcome
}

func (s *Service) newRun(ctx context.Context) *run {
	return &run{
		service: s,
		ctx:     ctx,
		outcome: Outcome{RequestID: uuid.NewString(), State: StateIdle},
	}
}

func (r *run) advance(next State, started time.Time) {
	elapsed := time.Since(started)
	observability.ObservePipelineStage(string(next), elapsed)
	r.outcome.Stages = append(r.outcome.Stages, StageTiming{Stage: next, Duration: elapsed})
	r.outcome.State = next
	r.service.logger.DebugContext(r.ctx, "pipeline stage complete",
		slog.String("request_id", r.outcome.RequestID),
		slog.String("stage", string(next)),
		slog.Duration("duration", elapsed),
	)
}

func (r *run) fail(err error) (Outcome, error) {
	failure := &Failure{Kind: Classify(err), Stage: r.outcome.State, Err: err}
	r.outcome.Failure = failure
	r.outcome.State = StateFailed
	observability.IncrementPipelineFailure(string(failure.Kind))
	r.service.logger.WarnContext(r.ctx, "pipeline failed",
		slog.String("request_id", r.outcome.RequestID),
		slog.String("kind", string(failure.Kind)),
		slog.String("stage", string(failure.Stage)),
		slog.Any("error", err),
	)
	return r.outcome, failure
}

// Ask answers one question. On failure the returned Outcome holds whatever was
// produced before the failing stage, and the error is a *Failure.
func (s *Service) Ask(ctx context.Context, source voice.QuestionSource, opts Options) (Outcome, error) {
	r := s.newRun(ctx)
	if source == nil {
		return r.fail(prompt.ErrEmptyQuestion)
	}
	question, err := source.Question(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.outcome.Question = strings.TrimSpace(question)
	if r.outcome.Question == "" {
		return r.fail(prompt.ErrEmptyQuestion)
	}

	started := time.Now()
	description, err := s.deps.Schemas.Get(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.advance(StateSchemaReady, started)

	started = time.Now()
	text, err := s.deps.Prompts.Build(r.outcome.Question, description)
	if err != nil {
		return r.fail(err)
	}
	r.advance(StatePromptBuilt, started)

	started = time.Now()
	generation, err := s.deps.Generator.GenerateSQL(ctx, text)
	if err != nil {
		return r.fail(err)
	}
	r.outcome.Generation = generation
	r.advance(StateSQLGenerated, started)

	return s.executeAndRender(r, generation.SQL, opts)
}

// Translate stops after SQL generation.
func (s *Service) Translate(ctx context.Context, question string) (Outcome, error) {
	r := s.newRun(ctx)
	r.outcome.Question = strings.TrimSpace(question)
	if r.outcome.Question == "" {
		return r.fail(prompt.ErrEmptyQuestion)
	}

	started := time.Now()
	description, err := s.deps.Schemas.Get(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.advance(StateSchemaReady, started)

	started = time.Now()
	text, err := s.deps.Prompts.Build(r.outcome.Question, description)
	if err != nil {
		return r.fail(err)
	}
	r.advance(StatePromptBuilt, started)

	started = time.Now()
	generation, err := s.deps.Generator.GenerateSQL(ctx, text)
	if err != nil {
		return r.fail(err)
	}
	r.outcome.Generation = generation
	r.advance(StateSQLGenerated, started)
	return r.outcome, nil
}

// Run executes caller-supplied SQL under the same guard and renders it.
func (s *Service) Run(ctx context.Context, sqlText string, opts Options) (Outcome, error) {
	r := s.newRun(ctx)
	r.outcome.Generation = nl2sql.Result{SQL: strings.TrimSpace(sqlText), Provider: "user"}
	r.outcome.State = StateSQLGenerated
	return s.executeAndRender(r, r.outcome.Generation.SQL, opts)
}

func (s *Service) executeAndRender(r *run, sqlText string, opts Options) (Outcome, error) {
	started := time.Now()
	result, err := s.deps.Executor.Execute(r.ctx, query.Request{
		SQL:            sqlText,
		RowLimit:       s.rowLimit(opts.RowLimit),
		AllowMutations: opts.AllowMutations && s.deps.Policy.AllowMutations,
	})
	if err != nil {
		return r.fail(err)
	}
	r.outcome.Result = result
	r.advance(StateExecuted, started)

	started = time.Now()
	r.outcome.Table = present.ToTable(result)
	if !opts.NoChart && result.Kind != query.StatementMutation {
		chart, err := present.ToChartSeries(result, opts.Chart)
		var noChart *present.NoChartError
		switch {
		case err == nil:
			r.outcome.Chart = &chart
		case errors.As(err, &noChart):
			r.outcome.ChartUnavailable = noChart.Reason
		default:
			return r.fail(err)
		}
	}
	r.advance(StateRendered, started)
	return r.outcome, nil
}

func (s *Service) rowLimit(requested int) int {
	limit := s.deps.Policy.RowLimit
	if requested > 0 && (limit == 0 || requested < limit) {
		return requested
	}
	return limit
}
