package types

// Role of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single role-tagged conversation entry
type Message struct {
	Role    Role   `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest carries a conversation history ending with the user's question
type ChatRequest struct {
	Messages []Message `json:"messages" binding:"required,min=1,dive"`
}

// QueryRequest for a single natural language question
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// TokenInfo describes a resolved token in API responses
type TokenInfo struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	ID     string `json:"id"`
}

// ChatResponse is the agent's reply to one invocation
type ChatResponse struct {
	Reply   string     `json:"reply"`
	Outcome string     `json:"outcome"`
	Token   *TokenInfo `json:"token,omitempty"`
	Price   *float64   `json:"price,omitempty"`
}

// WSMessage is the frame exchanged on the websocket chat endpoint
type WSMessage struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	Reply   *ChatResponse `json:"reply,omitempty"`
}

// ErrorResponse standard error format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
