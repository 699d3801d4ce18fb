// Package upstream dispatches normalized chat requests to the completion
// provider.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/pario-ai/chatrelay/pkg/models"
)

// Sampling parameters sent with every request. They are not configurable.
const (
	Temperature = 0.2
	TopP        = 1.0
)

// NoResponse is the reply used when the provider returns an empty message.
const NoResponse = "No response"

// Dispatcher sends a normalized request upstream. Any failure is returned as
// a models.RelayError of type ErrorTypeUpstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.ChatRequest) (*models.Completion, error)
}

// Options configures the OpenAI dispatcher.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// OpenAI is a Dispatcher backed by the OpenAI Chat Completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI dispatcher. SDK retries are disabled: a failed
// call is reported to the caller as-is.
func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(reqOpts...)}
}

// Params builds the completion payload for req.
func Params(req *models.ChatRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns))
	for _, t := range req.Turns {
		switch t.Role {
		case models.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(Temperature),
		TopP:        openai.Float(TopP),
	}
}

// Dispatch implements Dispatcher.
func (o *OpenAI) Dispatch(ctx context.Context, req *models.ChatRequest) (*models.Completion, error) {
	resp, err := o.client.Chat.Completions.New(ctx, Params(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, models.NewUpstreamError("response contained no choices", nil)
	}

	reply := resp.Choices[0].Message.Content
	if reply == "" {
		reply = NoResponse
	}
	return &models.Completion{
		Reply: reply,
		Model: resp.Model,
		Usage: models.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// classify maps SDK and transport errors onto an upstream RelayError whose
// details carry the provider's own message when there is one.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		details := apiErr.Message
		if details == "" {
			details = fmt.Sprintf("upstream returned status %d", apiErr.StatusCode)
		}
		return models.NewUpstreamError(details, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewUpstreamError("upstream request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewUpstreamError("upstream request canceled", err)
	}
	return models.NewUpstreamError(err.Error(), err)
}
