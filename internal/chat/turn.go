// Package chat turns a natural-language question into a validated SQL query,
// runs it and narrates the result. The orchestrator is the only entry point;
// generation and explanation are separate collaborators so they can be
// exercised and replaced independently.
package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the client-held conversation. The server never
// persists turns; history rides along on every request.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}
