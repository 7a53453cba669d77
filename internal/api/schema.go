package api

import (
	"log/slog"
	"net/http"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/schema"
)

type schemaTable struct {
	Name    string              `json:"name"`
	Columns []schema.ColumnInfo `json:"columns"`
}

type schemaResponse struct {
	Dialect     database.Dialect `json:"dialect"`
	Tables      []schemaTable    `json:"tables"`
	TableCount  int              `json:"table_count"`
	ColumnCount int              `json:"column_count"`
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema inspector is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeForbidden(r, w, err)
		return
	}

	description, err := deps.Schemas.Get(r.Context())
	if err != nil {
		writeFailure(r, w, pipeline.Outcome{}, err)
		return
	}
	writeJSON(w, http.StatusOK, newSchemaResponse(description))
}

func handleRefreshSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema inspector is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSchemaAdmin); err != nil {
		writeForbidden(r, w, err)
		return
	}

	description, err := deps.Schemas.Refresh(r.Context())
	if err != nil {
		writeFailure(r, w, pipeline.Outcome{}, err)
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "schema refreshed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.Int("tables", len(description.Tables)),
			slog.Int("columns", description.ColumnCount()),
		)
	}
	writeJSON(w, http.StatusOK, newSchemaResponse(description))
}

func newSchemaResponse(description schema.Description) schemaResponse {
	tables := make([]schemaTable, 0, len(description.Tables))
	for _, table := range description.Tables {
		tables = append(tables, schemaTable{
			Name:    description.QualifiedName(table),
			Columns: table.Columns,
		})
	}
	return schemaResponse{
		Dialect:     description.Dialect,
		Tables:      tables,
		TableCount:  len(tables),
		ColumnCount: description.ColumnCount(),
	}
}
