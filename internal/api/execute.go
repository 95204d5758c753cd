package api

import (
	"net/http"
	"strings"

	"github.com/analystproxy/analystproxy/internal/warehouse"
)

type executeRequest struct {
	Query string `json:"query"`
}

func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXECUTOR_NOT_CONFIGURED", "query executor is not configured", false, nil)
		return
	}

	var request executeRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid execute request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "query is required", false, nil)
		return
	}
	if !warehouse.IsReadOnly(request.Query) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}

	result, err := deps.Executor.Execute(r.Context(), request.Query)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"data":        rows,
		"columns":     result.Columns,
		"truncated":   result.Truncated,
		"duration_ms": result.Duration.Milliseconds(),
	})
}
