package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/voice"
)

// Kind names a class of failure. Every error leaving the pipeline has one.
type Kind string

const (
	KindConnection      Kind = "connection"
	KindSchema          Kind = "schema"
	KindInvalidQuestion Kind = "invalid_question"
	KindGeneration      Kind = "generation"
	KindNoSQLFound      Kind = "no_sql_found"
	KindUnsafeQuery     Kind = "unsafe_query"
	KindQueryExecution  Kind = "query_execution"
	KindTranscription   Kind = "transcription"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Retryable reports whether the same request may succeed later unchanged.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnection, KindGeneration, KindTranscription, KindCancelled:
		return true
	default:
		return false
	}
}

func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		failure          *Failure
		connErr          *database.ConnectionError
		schemaErr        *schema.Error
		generationErr    *nl2sql.GenerationError
		noSQLErr         *nl2sql.NoSQLFoundError
		unsafeErr        *query.UnsafeQueryError
		executionErr     *query.ExecutionError
		transcriptionErr *voice.TranscriptionError
	)
	switch {
	case errors.As(err, &failure):
		return failure.Kind
	case errors.As(err, &connErr):
		return KindConnection
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.Is(err, prompt.ErrEmptyQuestion):
		return KindInvalidQuestion
	case errors.As(err, &generationErr):
		return KindGeneration
	case errors.As(err, &noSQLErr):
		return KindNoSQLFound
	case errors.As(err, &unsafeErr):
		return KindUnsafeQuery
	case errors.As(err, &executionErr):
		return KindQueryExecution
	case errors.As(err, &transcriptionErr):
		return KindTranscription
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// Failure is the error returned by Ask. Stage is the last state reached before
// the failure.
type Failure struct {
	Kind  Kind
	Stage State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed after %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// RawOutput returns the model text for no_sql_found failures.
func (f *Failure) RawOutput() string {
	var noSQLErr *nl2sql.NoSQLFoundError
	if errors.As(f.Err, &noSQLErr) {
		return noSQLErr.Raw
	}
	return ""
}
