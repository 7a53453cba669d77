// Package nl2sql asks a hosted language model for SQL and extracts the single
// statement from its answer.
package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
)

const defaultMaxAttempts = 2

// systemInstruction is sent alongside every prompt by providers that accept one.
const systemInstruction = "You write SQL for a relational database. " +
	"Reply with a single SQL statement only. No markdown, no explanation."

// Completer sends one prompt to a model and returns its raw text answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// Prompter renders the prompt for a question.
type Prompter interface {
	Build(question string, description schema.Description) (string, error)
}

// Request is one submission: a question and the schema it is asked against.
type Request struct {
	Question string             `json:"question"`
	Schema   schema.Description `json:"-"`
}

type Result struct {
	SQL       string `json:"sql"`
	RawOutput string `json:"raw_output,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Attempts  int    `json:"attempts"`
}

type GeneratorConfig struct {
	// AttemptTimeout bounds each model call.
	AttemptTimeout time.Duration
	// MaxAttempts includes the first call. Defaults to 2.
	MaxAttempts int
	// RetryDelay is waited between attempts.
	RetryDelay time.Duration
}

type Generator struct {
	completer Completer
	prompter  Prompter
	cfg       GeneratorConfig
	logger    *slog.Logger
}

func NewGenerator(completer Completer, prompter Prompter, cfg GeneratorConfig, logger *slog.Logger) (*Generator, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Generator{completer: completer, prompter: prompter, cfg: cfg, logger: logger}, nil
}

func (g *Generator) Provider() string {
	return g.completer.Provider()
}

func (g *Generator) Model() string {
	return g.completer.Model()
}

// Translate builds the prompt for req and generates SQL from it.
func (g *Generator) Translate(ctx context.Context, req Request) (Result, error) {
	if g.prompter == nil {
		return Result{}, fmt.Errorf("prompt builder is not configured")
	}
	text, err := g.prompter.Build(req.Question, req.Schema)
	if err != nil {
		return Result{}, err
	}
	return g.GenerateSQL(ctx, text)
}

// GenerateSQL calls the model, retrying transient failures, and extracts one
// statement from the answer. Content problems are never retried.
func (g *Generator) GenerateSQL(ctx context.Context, prompt string) (Result, error) {
	provider := g.completer.Provider()
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		raw, err := g.complete(ctx, prompt)
		if err == nil {
			observability.IncrementGenerationAttempt(provider, "success")
			extraction := Extract(raw)
			if !extraction.Found {
				return Result{}, &NoSQLFoundError{Raw: raw}
			}
			return Result{
				SQL:       extraction.SQL,
				RawOutput: raw,
				Provider:  provider,
				Model:     g.completer.Model(),
				Attempts:  attempt,
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.IncrementGenerationAttempt(provider, "cancelled")
			return Result{}, ctxErr
		}

		lastErr = err
		if !isTransient(err) {
			observability.IncrementGenerationAttempt(provider, "error")
			return Result{}, &GenerationError{Provider: provider, Attempts: attempt, Err: err}
		}
		observability.IncrementGenerationAttempt(provider, "transient_error")
		if attempt < g.cfg.MaxAttempts {
			g.logger.Warn("model call failed, retrying",
				slog.String("provider", provider),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			if err := sleepContext(ctx, g.cfg.RetryDelay); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{}, &GenerationError{Provider: provider, Attempts: g.cfg.MaxAttempts, Err: lastErr}
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()
	return g.completer.Complete(attemptCtx, prompt)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
