package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/voice"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "askdb-api" {
		t.Fatalf("service = %v", body["service"])
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "askdb_") {
		t.Fatal("expected askdb metrics in exposition")
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Schemas:        &fakeSchemaStore{description: shopDescription()},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Schemas: &fakeSchemaStore{description: shopDescription()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckModelConfig(t *testing.T) {
	cfg := loadConfig(t, nil)
	if err := CheckModelConfig(cfg)(context.Background()); err == nil {
		t.Fatal("CheckModelConfig() error = nil without api key")
	}
	cfg.AI.APIKey = "sk-test"
	if err := CheckModelConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckModelConfig() error = %v", err)
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/console", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

type fakePipeline struct {
	ask       func(ctx context.Context, question string, opts pipeline.Options) (pipeline.Outcome, error)
	translate func(ctx context.Context, question string) (pipeline.Outcome, error)
	run       func(ctx context.Context, sqlText string, opts pipeline.Options) (pipeline.Outcome, error)

	lastOptions pipeline.Options
}

func (f *fakePipeline) Ask(ctx context.Context, source voice.QuestionSource, opts pipeline.Options) (pipeline.Outcome, error) {
	f.lastOptions = opts
	question, err := source.Question(ctx)
	if err != nil {
		return pipeline.Outcome{RequestID: "req-1"}, &pipeline.Failure{Kind: pipeline.Classify(err), Stage: pipeline.StateIdle, Err: err}
	}
	return f.ask(ctx, question, opts)
}

func (f *fakePipeline) Translate(ctx context.Context, question string) (pipeline.Outcome, error) {
	return f.translate(ctx, question)
}

func (f *fakePipeline) Run(ctx context.Context, sqlText string, opts pipeline.Options) (pipeline.Outcome, error) {
	f.lastOptions = opts
	return f.run(ctx, sqlText, opts)
}

type fakeSchemaStore struct {
	description schema.Description
	err         error
	refreshes   int
}

func (f *fakeSchemaStore) Get(context.Context) (schema.Description, error) {
	return f.description, f.err
}

func (f *fakeSchemaStore) Refresh(context.Context) (schema.Description, error) {
	f.refreshes++
	return f.description, f.err
}

func shopDescription() schema.Description {
	return schema.Description{
		Dialect: "sqlite",
		Tables: []schema.TableInfo{
			{Schema: "main", Name: "customers", Columns: []schema.ColumnInfo{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}}},
			{Schema: "main", Name: "orders", Columns: []schema.ColumnInfo{{Name: "id", Type: "integer"}, {Name: "customer_id", Type: "integer"}, {Name: "total", Type: "real"}}},
		},
	}
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	cfg, err := config.Load("askdb-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
