package observability

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	traceHeader     = "X-Trace-ID"
	maxTraceIDBytes = 128
)

// requestInfo collects facts learned while a request is handled, such as the
// authenticated subject, so the request log line can report them.
type requestInfo struct {
	subject string
}

const requestInfoKey ctxKey = "request_info"

// SetSubject records who made the request. It is a no-op outside
// TraceMiddleware.
func SetSubject(ctx context.Context, subject string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.subject = subject
	}
}

func SubjectFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.subject
	}
	return ""
}

// TraceMiddleware reuses a well-formed incoming X-Trace-ID and generates one
// otherwise.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if !validTraceID(traceID) {
			traceID = NewTraceID()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		ctx = context.WithValue(ctx, requestInfoKey, &requestInfo{})
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validTraceID(traceID string) bool {
	if traceID == "" || len(traceID) > maxTraceIDBytes {
		return false
	}
	for i := 0; i < len(traceID); i++ {
		if c := traceID[i]; c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

// LoggingMiddleware writes one line per request: errors for 5xx, warnings for
// 4xx and info otherwise.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			level := slog.LevelInfo
			switch {
			case recorder.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case recorder.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int("bytes", recorder.bytes),
			}
			if subject := SubjectFromContext(r.Context()); subject != "" {
				attrs = append(attrs, slog.String("subject", subject))
			}
			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path, recorder.status)
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel keeps API paths and folds console routes and unknown API paths,
// which are arbitrary, into fixed labels.
func routeLabel(path string, status int) string {
	switch {
	case !strings.HasPrefix(path, "/v1/"):
		return "ui"
	case status == http.StatusNotFound:
		return "unmatched"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

// NewTraceID returns a random identifier for requests that arrive without one.
func NewTraceID() string {
	return uuid.NewString()
}
