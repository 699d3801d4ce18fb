// Package normalize turns an inbound chat body into a bounded, upstream-ready
// request.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/chatrelay/pkg/models"
)

// ErrMessagesFormat is the caller-facing message for a missing, empty or
// non-array messages field.
const ErrMessagesFormat = "Invalid request format. 'messages' must be a non-empty array."

// Normalizer validates conversations and resolves model settings.
type Normalizer struct {
	model      string
	maxTokens  int
	maxHistory int
}

// New creates a Normalizer. All bounds must be positive.
func New(model string, maxTokens, maxHistory int) (*Normalizer, error) {
	if model == "" {
		return nil, fmt.Errorf("normalizer: empty model")
	}
	if maxTokens <= 0 || maxHistory <= 0 {
		return nil, fmt.Errorf("normalizer: maxTokens and maxHistory must be positive (got %d, %d)", maxTokens, maxHistory)
	}
	return &Normalizer{model: model, maxTokens: maxTokens, maxHistory: maxHistory}, nil
}

type rawBody struct {
	Messages json.RawMessage `json:"messages"`
}

type rawTurn struct {
	Role    *string          `json:"role"`
	Content *json.RawMessage `json:"content"`
}

// Decode parses a raw request body and normalizes it.
func (n *Normalizer) Decode(body []byte) (*models.ChatRequest, error) {
	var rb rawBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return nil, models.NewInvalidRequestError(ErrMessagesFormat, err)
	}

	msgs := bytes.TrimSpace(rb.Messages)
	if len(msgs) == 0 || msgs[0] != '[' {
		return nil, models.NewInvalidRequestError(ErrMessagesFormat, nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(msgs, &items); err != nil {
		return nil, models.NewInvalidRequestError(ErrMessagesFormat, err)
	}

	turns := make([]models.ConversationTurn, 0, len(items))
	for i, item := range items {
		turn, err := decodeTurn(item)
		if err != nil {
			return nil, models.NewInvalidRequestError(fmt.Sprintf("Invalid message at index %d: %s", i, err.Error()), nil)
		}
		turns = append(turns, turn)
	}

	return n.Normalize(turns)
}

func decodeTurn(item json.RawMessage) (models.ConversationTurn, error) {
	var rt rawTurn
	if err := json.Unmarshal(item, &rt); err != nil {
		return models.ConversationTurn{}, fmt.Errorf("must be an object with role and content")
	}
	if rt.Role == nil {
		return models.ConversationTurn{}, fmt.Errorf("missing role")
	}
	role := models.Role(*rt.Role)
	if !role.Valid() {
		return models.ConversationTurn{}, fmt.Errorf("unsupported role %q", *rt.Role)
	}
	if rt.Content == nil {
		return models.ConversationTurn{}, fmt.Errorf("missing content")
	}
	var content string
	if err := json.Unmarshal(*rt.Content, &content); err != nil {
		return models.ConversationTurn{}, fmt.Errorf("content must be a string")
	}
	return models.ConversationTurn{Role: role, Content: content}, nil
}

// Normalize validates an already decoded conversation and trims it to the
// retention bound.
func (n *Normalizer) Normalize(turns []models.ConversationTurn) (*models.ChatRequest, error) {
	if len(turns) == 0 {
		return nil, models.NewInvalidRequestError(ErrMessagesFormat, nil)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, models.NewInvalidRequestError(fmt.Sprintf("Invalid message at index %d: unsupported role %q", i, t.Role), nil)
		}
	}
	kept := Trim(turns, n.maxHistory)
	return &models.ChatRequest{
		Turns:      kept,
		Model:      n.model,
		MaxTokens:  n.maxTokens,
		MaxHistory: n.maxHistory,
		Dropped:    len(turns) - len(kept),
	}, nil
}

// Trim returns a new slice holding the last max turns of turns, oldest first.
// The input is never modified.
func Trim(turns []models.ConversationTurn, max int) []models.ConversationTurn {
	start := 0
	if max > 0 && len(turns) > max {
		start = len(turns) - max
	}
	out := make([]models.ConversationTurn, len(turns)-start)
	copy(out, turns[start:])
	return out
}
