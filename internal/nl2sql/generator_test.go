package nl2sql

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/schema"
)

type scriptedReply struct {
	text string
	err  error
}

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply.text, reply.err
}

func (s *scriptedCompleter) Provider() string { return "scripted" }

func (s *scriptedCompleter) Model() string { return "scripted-1" }

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func newTestGenerator(t *testing.T, completer Completer, prompter Prompter) *Generator {
	t.Helper()
	generator, err := NewGenerator(completer, prompter, GeneratorConfig{AttemptTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return generator
}

func TestGenerateSQLExtractsStatement(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{{text: "```sql\nSELECT 1;\n```"}}}
	result, err := newTestGenerator(t, completer, nil).GenerateSQL(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.RawOutput != "```sql\nSELECT 1;\n```" {
		t.Fatalf("RawOutput = %q", result.RawOutput)
	}
	if result.Provider != "scripted" || result.Model != "scripted-1" || result.Attempts != 1 {
		t.Fatalf("Result = %+v", result)
	}
}

func TestGenerateSQLRetriesTransientFailureOnce(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{
		{err: &StatusError{Provider: "scripted", StatusCode: http.StatusServiceUnavailable}},
		{text: "SELECT 2"},
	}}
	result, err := newTestGenerator(t, completer, nil).GenerateSQL(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if result.Attempts != 2 || result.SQL != "SELECT 2" {
		t.Fatalf("Result = %+v", result)
	}
}

func TestGenerateSQLGivesUpAfterSecondTransientFailure(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{
		{err: &StatusError{Provider: "scripted", StatusCode: http.StatusTooManyRequests}},
		{err: &StatusError{Provider: "scripted", StatusCode: http.StatusBadGateway}},
		{text: "SELECT 3"},
	}}
	_, err := newTestGenerator(t, completer, nil).GenerateSQL(context.Background(), "prompt")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("GenerateSQL() error = %v, want GenerationError", err)
	}
	if genErr.Attempts != 2 {
		t.Fatalf("Attempts = %d", genErr.Attempts)
	}
	if completer.calls() != 2 {
		t.Fatalf("calls = %d, want 2", completer.calls())
	}
}

func TestGenerateSQLDoesNotRetryClientErrors(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{
		{err: &StatusError{Provider: "scripted", StatusCode: http.StatusUnauthorized}},
		{text: "SELECT 1"},
	}}
	_, err := newTestGenerator(t, completer, nil).GenerateSQL(context.Background(), "prompt")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("GenerateSQL() error = %v, want GenerationError", err)
	}
	if completer.calls() != 1 {
		t.Fatalf("calls = %d, want 1", completer.calls())
	}
}

func TestGenerateSQLNoSQLFoundIsNotRetried(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{
		{text: "I'm sorry, I can't help with that."},
		{text: "SELECT 1"},
	}}
	_, err := newTestGenerator(t, completer, nil).GenerateSQL(context.Background(), "prompt")
	var noSQL *NoSQLFoundError
	if !errors.As(err, &noSQL) {
		t.Fatalf("GenerateSQL() error = %v, want NoSQLFoundError", err)
	}
	if noSQL.Raw != "I'm sorry, I can't help with that." {
		t.Fatalf("Raw = %q", noSQL.Raw)
	}
	if completer.calls() != 1 {
		t.Fatalf("calls = %d, want 1", completer.calls())
	}
}

func TestGenerateSQLReturnsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := &scriptedCompleter{replies: []scriptedReply{{err: context.Canceled}}}
	_, err := newTestGenerator(t, completer, nil).GenerateSQL(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GenerateSQL() error = %v, want context.Canceled", err)
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		t.Fatal("cancellation should not be reported as GenerationError")
	}
}

type blockingCompleter struct{ calls int }

func (b *blockingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *blockingCompleter) Provider() string { return "slow" }

func (b *blockingCompleter) Model() string { return "slow-1" }

func TestGenerateSQLRetriesAttemptTimeout(t *testing.T) {
	completer := &blockingCompleter{}
	generator, err := NewGenerator(completer, nil, GeneratorConfig{AttemptTimeout: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	_, err = generator.GenerateSQL(context.Background(), "prompt")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("GenerateSQL() error = %v, want GenerationError", err)
	}
	if completer.calls != 2 {
		t.Fatalf("calls = %d, want 2", completer.calls)
	}
}

type stubPrompter struct{}

func (stubPrompter) Build(question string, description schema.Description) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("empty")
	}
	return "tables=" + description.Tables[0].Name + " q=" + question, nil
}

func TestTranslateBuildsPrompt(t *testing.T) {
	completer := &scriptedCompleter{replies: []scriptedReply{{text: "SELECT count(*) FROM customers"}}}
	result, err := newTestGenerator(t, completer, stubPrompter{}).Translate(context.Background(), Request{
		Question: "how many customers",
		Schema:   schema.Description{Tables: []schema.TableInfo{{Name: "customers"}}},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT count(*) FROM customers" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if completer.prompts[0] != "tables=customers q=how many customers" {
		t.Fatalf("prompt = %q", completer.prompts[0])
	}
}

func TestTranslatePromptErrorSkipsModel(t *testing.T) {
	completer := &scriptedCompleter{}
	_, err := newTestGenerator(t, completer, stubPrompter{}).Translate(context.Background(), Request{Question: " "})
	if err == nil {
		t.Fatal("expected error")
	}
	if completer.calls() != 0 {
		t.Fatalf("calls = %d, want 0", completer.calls())
	}
}

func TestNewGeneratorRequiresCompleter(t *testing.T) {
	if _, err := NewGenerator(nil, nil, GeneratorConfig{}, nil); err == nil {
		t.Fatal("expected error")
	}
}
