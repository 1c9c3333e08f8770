package api

import (
	"encoding/json"
	"net/http"

	"github.com/deniscovei/fraudchat/internal/config"
	"github.com/deniscovei/fraudchat/internal/observability"
	"github.com/deniscovei/fraudchat/internal/sqlguard"
)

type executeSQLRequest struct {
	Query string `json:"query"`
}

type executeSQLRejection struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Rule    string `json:"rule,omitempty"`
}

// handleExecuteSQL runs a caller-supplied statement through the same
// validator and executor the chat flow uses. Rejections and execution errors
// are 400s: the request was understood, the statement was not acceptable.
func handleExecuteSQL(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req executeSQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", false, nil)
		return
	}
	statement := sqlguard.Normalize(req.Query)
	if statement == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false, nil)
		return
	}

	verdict := deps.Validator.Validate(statement)
	if !verdict.Accepted {
		observability.IncrementValidationRejection(verdict.Rule)
		writeJSON(w, http.StatusBadRequest, executeSQLRejection{
			Success: false,
			Error:   verdict.Reason,
			Rule:    verdict.Rule,
		})
		return
	}

	result, err := deps.Executor.Execute(r.Context(), statement, cfg.Chat.RowCap, cfg.Chat.QueryTimeout)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, executeSQLRejection{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	observability.ObserveQueryExecution(result.Elapsed, result.Truncated)

	writeJSON(w, http.StatusOK, resultPayload(result, true))
}
