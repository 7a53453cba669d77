package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/present"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/voice"
)

type queryRequest struct {
	SQL            string `json:"sql"`
	Chart          string `json:"chart"`
	AllowMutations bool   `json:"allow_mutations"`
	RowLimit       int    `json:"row_limit"`
}

type exportRequest struct {
	SQL      string `json:"sql"`
	Question string `json:"question"`
	RowLimit int    `json:"row_limit"`
}

type exportFormat struct {
	contentType string
	extension   string
	write       func(*bytes.Buffer, query.Result) error
}

var exportFormats = map[string]exportFormat{
	"csv": {
		contentType: "text/csv; charset=utf-8",
		extension:   "csv",
		write: func(buf *bytes.Buffer, result query.Result) error {
			return present.WriteCSV(buf, result)
		},
	},
	"parquet": {
		contentType: "application/vnd.apache.parquet",
		extension:   "parquet",
		write: func(buf *bytes.Buffer, result query.Result) error {
			return present.WriteParquet(buf, result)
		},
	},
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	opts, ok := pipelineOptions(w, r, request.Chart, request.AllowMutations, request.RowLimit)
	if !ok {
		return
	}

	outcome, err := deps.Pipeline.Run(r.Context(), request.SQL, opts)
	if err != nil {
		writeFailure(r, w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(outcome))
}

// handleExport runs read-only SQL, or a question when no SQL is given, and
// streams the result as a file.
func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	formatName := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if formatName == "" {
		formatName = "csv"
	}
	format, ok := exportFormats[formatName]
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", fmt.Sprintf("unsupported export format %q", formatName), false, map[string]any{"supported": []string{"csv", "parquet"}})
		return
	}

	var request exportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must be >= 0", false, nil)
		return
	}

	opts := pipeline.Options{NoChart: true, RowLimit: request.RowLimit}
	var (
		outcome pipeline.Outcome
		err     error
	)
	switch {
	case strings.TrimSpace(request.SQL) != "":
		outcome, err = deps.Pipeline.Run(r.Context(), request.SQL, opts)
	case strings.TrimSpace(request.Question) != "":
		outcome, err = deps.Pipeline.Ask(r.Context(), voice.Text(request.Question), opts)
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql or question is required", false, nil)
		return
	}
	if err != nil {
		writeFailure(r, w, outcome, err)
		return
	}

	var buf bytes.Buffer
	if err := format.write(&buf, outcome.Result); err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EXPORT_FAILED", err.Error(), false, map[string]any{"request_id": outcome.RequestID})
		return
	}
	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "askdb-"+outcome.RequestID+"."+format.extension))
	w.Header().Set("X-Request-ID", outcome.RequestID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
