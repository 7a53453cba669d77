package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/schema"
)

func TestSchemaEndpointReturnsTables(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Schemas: &fakeSchemaStore{description: shopDescription()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["dialect"] != "sqlite" || body["table_count"] != float64(2) || body["column_count"] != float64(5) {
		t.Fatalf("body = %v", body)
	}
	tables := body["tables"].([]any)
	if tables[0].(map[string]any)["name"] != "customers" {
		t.Fatalf("tables = %v", tables)
	}
}

func TestSchemaEndpointMapsConnectionFailure(t *testing.T) {
	store := &fakeSchemaStore{err: &database.ConnectionError{Err: errors.New("dial tcp: connection refused")}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Schemas: store})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "CONNECTION" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
	if extra := body["context"].(map[string]any); extra["suggestion"] == nil {
		t.Fatalf("context = %v", extra)
	}
}

func TestSchemaEndpointMapsEmptyDatabase(t *testing.T) {
	store := &fakeSchemaStore{err: &schema.Error{Err: schema.ErrNoTables}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Schemas: store})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "SCHEMA" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestSchemaRefreshRequiresSchemaAdmin(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("reader:alice:asker,admin:ops:schema_admin")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	store := &fakeSchemaStore{description: shopDescription()}
	h := NewHandler(cfg, Dependencies{AuthMiddleware: auth.Middleware(nil, validator), Schemas: store})

	req := httptest.NewRequest(http.MethodPost, "/v1/schema/refresh", nil)
	req.Header.Set("X-API-Key", "reader")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", rr.Code)
	}
	if store.refreshes != 0 {
		t.Fatalf("refreshes = %d", store.refreshes)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/schema/refresh", nil)
	req.Header.Set("X-API-Key", "admin")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if store.refreshes != 1 {
		t.Fatalf("refreshes = %d", store.refreshes)
	}
}
