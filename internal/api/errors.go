package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/query"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

func statusForFailure(kind pipeline.Kind, err error) int {
	switch kind {
	case pipeline.KindConnection:
		return http.StatusServiceUnavailable
	case pipeline.KindInvalidQuestion, pipeline.KindUnsafeQuery, pipeline.KindQueryExecution:
		return http.StatusBadRequest
	case pipeline.KindGeneration, pipeline.KindTranscription:
		return http.StatusBadGateway
	case pipeline.KindNoSQLFound:
		return http.StatusUnprocessableEntity
	case pipeline.KindCancelled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure renders a pipeline failure. The outcome carries whatever the
// pipeline produced before it stopped.
func writeFailure(r *http.Request, w http.ResponseWriter, outcome pipeline.Outcome, err error) {
	kind := pipeline.Classify(err)
	extra := map[string]any{"kind": kind}
	if outcome.RequestID != "" {
		extra["request_id"] = outcome.RequestID
	}
	if outcome.Generation.SQL != "" {
		extra["sql"] = outcome.Generation.SQL
	}

	message := err.Error()
	var failure *pipeline.Failure
	if errors.As(err, &failure) {
		extra["stage"] = failure.Stage
		if raw := failure.RawOutput(); raw != "" {
			extra["raw_output"] = raw
		}
		message = failure.Err.Error()
	}
	var executionErr *query.ExecutionError
	if errors.As(err, &executionErr) {
		message = executionErr.Message
	}
	if kind == pipeline.KindConnection {
		extra["suggestion"] = "check the database is reachable and retry"
	}

	writeError(r.Context(), w, statusForFailure(kind, err), strings.ToUpper(string(kind)), message, kind.Retryable(), extra)
}

// requireRole passes when auth is disabled and no identity is attached.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func writeForbidden(r *http.Request, w http.ResponseWriter, err error) {
	writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
}
