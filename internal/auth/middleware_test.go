package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/observability"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:query_writer|asker, k2:bob:schema_admin")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Subject != "alice" {
		t.Fatalf("Subject = %q", identity.Subject)
	}
	if !identity.HasRole(RoleQueryWriter) || !identity.HasRole(RoleAsker) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	if identity.HasRole(RoleSchemaAdmin) {
		t.Fatal("did not expect schema_admin role")
	}
	if identity.Roles[0] != RoleAsker {
		t.Fatalf("Roles = %v, want sorted", identity.Roles)
	}
	if _, ok := validator.Validate(context.Background(), "nope"); ok {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestStaticAPIKeyValidatorEmptySpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("  ")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 0 {
		t.Fatalf("Len() = %d", validator.Len())
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{name: "missing parts", spec: "invalid"},
		{name: "empty subject", spec: "k1::asker"},
		{name: "no roles", spec: "k1:alice:|"},
		{name: "unknown role", spec: "k1:alice:root"},
		{name: "duplicate key", spec: "k1:alice:asker,k1:bob:asker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticAPIKeyValidator(tt.spec); err == nil {
				t.Fatalf("NewStaticAPIKeyValidator(%q) error = nil", tt.spec)
			}
		})
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "UNAUTHORIZED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestMiddlewareRejectsUnknownKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "Bearer k2")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	for _, header := range []string{"X-API-Key", "Authorization"} {
		t.Run(header, func(t *testing.T) {
			var subject string
			handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := IdentityFromContext(r.Context())
				if ok {
					subject = identity.Subject
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
			if header == "Authorization" {
				req.Header.Set(header, "Bearer k1")
			} else {
				req.Header.Set(header, "k1")
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusNoContent {
				t.Fatalf("status = %d", rr.Code)
			}
			if subject != "alice" {
				t.Fatalf("Subject = %q", subject)
			}
		})
	}
}

func TestMiddlewareRejectsUnsupportedScheme(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	req.Header.Set("Authorization", "Basic azE6")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="askdb"` {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if message, _ := body["message"].(string); !strings.Contains(message, "unsupported authorization scheme") {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestMiddlewareRecordsSubjectForRequestLog(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	var subject string
	handler := observability.TraceMiddleware(Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = observability.SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	req.Header.Set("Authorization", "bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if subject != "alice" {
		t.Fatalf("SubjectFromContext() = %q", subject)
	}
}
