package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// Reasons reported in askdb_auth_failures_total.
const (
	reasonMissingKey        = "missing_key"
	reasonUnsupportedScheme = "unsupported_scheme"
	reasonInvalidKey        = "invalid_key"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware authenticates askdb API calls by X-API-Key or a bearer token and
// stores the caller's Identity in the request context. Role checks happen in
// the handlers, which know what each operation needs.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, reason := extractAPIKey(r)
			if reason == "" {
				if identity, ok := validator.Validate(r.Context(), apiKey); ok {
					observability.SetSubject(r.Context(), identity.Subject)
					logger.DebugContext(r.Context(), "request authenticated",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("subject", identity.Subject),
						slog.Any("roles", identity.Roles),
					)
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
					return
				}
				reason = reasonInvalidKey
			}

			observability.IncrementAuthFailure(reason)
			logger.WarnContext(r.Context(), "authentication failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("path", r.URL.Path),
				slog.String("reason", reason),
			)
			writeUnauthorized(w, r, unauthorizedMessage(reason))
		})
	}
}

// extractAPIKey returns the key or the reason there is none.
func extractAPIKey(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, ""
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return "", reasonMissingKey
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", reasonUnsupportedScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", reasonMissingKey
	}
	return token, ""
}

func unauthorizedMessage(reason string) string {
	switch reason {
	case reasonMissingKey:
		return "missing API key"
	case reasonUnsupportedScheme:
		return "unsupported authorization scheme, use X-API-Key or Bearer"
	default:
		return "invalid API key"
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="askdb"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"context":    map[string]any{},
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
