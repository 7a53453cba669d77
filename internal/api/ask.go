package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/present"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/voice"
)

const defaultMaxUploadBytes = 25 << 20

type askRequest struct {
	Question       string `json:"question"`
	Chart          string `json:"chart"`
	AllowMutations bool   `json:"allow_mutations"`
	RowLimit       int    `json:"row_limit"`
}

type askResponse struct {
	RequestID        string              `json:"request_id"`
	Question         string              `json:"question,omitempty"`
	SQL              string              `json:"sql"`
	Provider         string              `json:"provider"`
	Model            string              `json:"model,omitempty"`
	Attempts         int                 `json:"attempts,omitempty"`
	Kind             query.StatementKind `json:"kind"`
	Columns          []string            `json:"columns"`
	Rows             [][]any             `json:"rows"`
	Table            present.TabularView `json:"table"`
	Chart            *present.ChartData  `json:"chart,omitempty"`
	ChartUnavailable string              `json:"chart_unavailable,omitempty"`
	Stats            map[string]any      `json:"stats"`
}

type translateRequest struct {
	Question string `json:"question"`
}

type translateResponse struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
	SQL       string `json:"sql"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Attempts  int    `json:"attempts"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	opts, ok := pipelineOptions(w, r, request.Chart, request.AllowMutations, request.RowLimit)
	if !ok {
		return
	}

	outcome, err := deps.Pipeline.Ask(r.Context(), voice.Text(request.Question), opts)
	if err != nil {
		writeFailure(r, w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(outcome))
}

func handleAskVoice(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if deps.Transcriber == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "VOICE_NOT_ENABLED", "voice input is not enabled", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	maxBytes := deps.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "audio upload exceeds the configured limit", false, map[string]any{"max_bytes": maxBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "invalid multipart body", false, map[string]any{"details": err.Error()})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "AUDIO_REQUIRED", "multipart field audio is required", false, nil)
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to read audio", false, map[string]any{"details": err.Error()})
		return
	}

	allowMutations, err := formBool(r.FormValue("allow_mutations"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FIELD", "allow_mutations must be a boolean", false, nil)
		return
	}
	rowLimit, err := formInt(r.FormValue("row_limit"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FIELD", "row_limit must be an integer", false, nil)
		return
	}
	opts, ok := pipelineOptions(w, r, r.FormValue("chart"), allowMutations, rowLimit)
	if !ok {
		return
	}

	source := voice.Speech{
		Audio: voice.Audio{
			Data:     data,
			MimeType: header.Header.Get("Content-Type"),
			Filename: header.Filename,
		},
		Transcriber: deps.Transcriber,
	}
	outcome, err := deps.Pipeline.Ask(r.Context(), source, opts)
	if err != nil {
		writeFailure(r, w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(outcome))
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	var request translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}

	outcome, err := deps.Pipeline.Translate(r.Context(), request.Question)
	if err != nil {
		writeFailure(r, w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		RequestID: outcome.RequestID,
		Question:  outcome.Question,
		SQL:       outcome.Generation.SQL,
		Provider:  outcome.Generation.Provider,
		Model:     outcome.Generation.Model,
		Attempts:  outcome.Generation.Attempts,
	})
}

// pipelineOptions writes the error response itself and reports false when the
// request cannot proceed.
func pipelineOptions(w http.ResponseWriter, r *http.Request, chart string, allowMutations bool, rowLimit int) (pipeline.Options, bool) {
	var opts pipeline.Options
	if strings.EqualFold(strings.TrimSpace(chart), "none") {
		opts.NoChart = true
	} else {
		kind, err := present.ParseChartKind(chart)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CHART", err.Error(), false, nil)
			return opts, false
		}
		opts.Chart = kind
	}
	if rowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must be >= 0", false, nil)
		return opts, false
	}
	opts.RowLimit = rowLimit
	if allowMutations {
		if err := requireRole(r, auth.RoleQueryWriter); err != nil {
			writeForbidden(r, w, err)
			return opts, false
		}
		opts.AllowMutations = true
	}
	return opts, true
}

func newAskResponse(outcome pipeline.Outcome) askResponse {
	result := outcome.Result
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	stages := make(map[string]int64, len(outcome.Stages))
	for _, stage := range outcome.Stages {
		stages[string(stage.Stage)] = stage.Duration.Milliseconds()
	}
	stats := map[string]any{
		"duration_ms": result.Duration.Milliseconds(),
		"row_count":   len(result.Rows),
		"truncated":   result.Truncated,
		"stages_ms":   stages,
	}
	if result.Kind == query.StatementMutation {
		stats["rows_affected"] = result.RowsAffected
	}
	return askResponse{
		RequestID:        outcome.RequestID,
		Question:         outcome.Question,
		SQL:              outcome.Generation.SQL,
		Provider:         outcome.Generation.Provider,
		Model:            outcome.Generation.Model,
		Attempts:         outcome.Generation.Attempts,
		Kind:             result.Kind,
		Columns:          result.Columns,
		Rows:             rows,
		Table:            outcome.Table,
		Chart:            outcome.Chart,
		ChartUnavailable: outcome.ChartUnavailable,
		Stats:            stats,
	}
}

func formBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func formInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
