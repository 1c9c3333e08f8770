package api

import (
	"net/http"

	"github.com/deniscovei/fraudchat/internal/schema"
)

type schemaColumnPayload struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type schemaTablePayload struct {
	TableName string                `json:"table_name"`
	Columns   []schemaColumnPayload `json:"columns"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		deps.Schemas.Invalidate()
	}
	tables, err := deps.Schemas.Tables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_LOOKUP_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": buildSchemaPayload(tables)})
}

func buildSchemaPayload(tables []schema.Table) []schemaTablePayload {
	payload := make([]schemaTablePayload, 0, len(tables))
	for _, table := range tables {
		columns := make([]schemaColumnPayload, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, schemaColumnPayload{
				Name:     column.Name,
				Type:     column.DataType,
				Nullable: column.Nullable,
			})
		}
		payload = append(payload, schemaTablePayload{TableName: table.Name, Columns: columns})
	}
	return payload
}
