package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/deniscovei/fraudchat/internal/chat"
	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/sqlexec"
)

type chatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history"`
}

type queryResultsPayload struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	Success   bool     `json:"success"`
}

type chatResponsePayload struct {
	Response      string               `json:"response"`
	SQLQuery      *string              `json:"sql_query"`
	SQLExecuted   bool                 `json:"sql_executed"`
	QueryResults  *queryResultsPayload `json:"query_results"`
	FinalResponse string               `json:"final_response"`
	Conversation  []chat.Turn          `json:"conversation"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	for _, turn := range req.History {
		if !turn.Role.Valid() {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_HISTORY", "history roles must be user or assistant", false, nil)
			return
		}
	}

	resp, err := deps.Orchestrator.Respond(r.Context(), req.Message, req.History)
	if err != nil {
		status, code := classifyChatFailure(err)
		writeError(r.Context(), w, status, code, err.Error(), status == http.StatusGatewayTimeout, nil)
		return
	}

	writeJSON(w, http.StatusOK, buildChatPayload(resp))
}

func classifyChatFailure(err error) (int, string) {
	if errors.Is(err, chat.ErrRequestTimeout) {
		return http.StatusGatewayTimeout, "REQUEST_TIMEOUT"
	}
	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == llm.KindAuthFailure {
		return http.StatusBadGateway, "UPSTREAM_AUTH_FAILURE"
	}
	return http.StatusBadGateway, "UPSTREAM_FAILURE"
}

func buildChatPayload(resp chat.Response) chatResponsePayload {
	payload := chatResponsePayload{
		Response:      resp.Reply,
		SQLExecuted:   resp.SQLExecuted,
		FinalResponse: resp.Reply,
		Conversation:  resp.Conversation,
	}
	if resp.SQL != "" {
		payload.SQLQuery = &resp.SQL
	}
	if resp.Result != nil {
		payload.QueryResults = resultPayload(*resp.Result, true)
	}
	if resp.Explanation != nil {
		payload.FinalResponse = resp.Explanation.Text
	}
	return payload
}

func resultPayload(result sqlexec.Result, success bool) *queryResultsPayload {
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return &queryResultsPayload{
		Columns:   result.Columns,
		Rows:      rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Success:   success,
	}
}
