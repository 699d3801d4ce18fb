package models

import "time"

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks per-request token usage.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id,omitempty"`
	Model            string    `json:"model"`
	UpstreamModel    string    `json:"upstream_model,omitempty"`
	CacheHit         bool      `json:"cache_hit"`
	Turns            int       `json:"turns"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests for one model.
type UsageSummary struct {
	Model           string `json:"model"`
	RequestCount    int    `json:"request_count"`
	CacheHits       int    `json:"cache_hits"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Cache          CacheStats     `json:"cache"`
	Usage          []UsageSummary `json:"usage"`
	TokensLastHour int64          `json:"tokens_last_hour"`
	Recent         []UsageRecord  `json:"recent,omitempty"`
}
