package models

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the upstream accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ConversationTurn is a single role-tagged message in a conversation.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a normalized conversation ready for fingerprinting and dispatch.
type ChatRequest struct {
	Turns      []ConversationTurn `json:"messages"`
	Model      string             `json:"model"`
	MaxTokens  int                `json:"max_tokens"`
	MaxHistory int                `json:"-"`
	// Dropped counts the oldest turns removed by truncation.
	Dropped int `json:"-"`
}

// ChatBody is the inbound /api/chat payload.
type ChatBody struct {
	Messages []ConversationTurn `json:"messages"`
}

// ChatResponse is the relay's success body.
type ChatResponse struct {
	Reply      string `json:"reply"`
	Model      string `json:"model"`
	Disclaimer string `json:"disclaimer"`
}

// ErrorResponse is the relay's failure body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Completion is the result of one successful upstream call.
type Completion struct {
	Reply string
	// Model is the identifier echoed back by the upstream, which may carry a
	// dated suffix the caller never asked for.
	Model string
	Usage Usage
}
