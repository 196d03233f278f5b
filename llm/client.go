// Package llm provides a codescope.Generator backed by an OpenAI-compatible
// chat completion API such as Groq.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/agentstation/codescope"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the model reviews are generated with.
	DefaultModel = "llama-3.3-70b-versatile"
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("llm: API key is required")

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Temperature is sent as is; zero means deterministic sampling.
	Temperature float32
	// MaxTokens caps the completion length, zero leaves it to the service.
	MaxTokens int
	// SystemPrompt is sent ahead of every prompt when non-empty.
	SystemPrompt string
	HTTPClient   *http.Client
}

// Client generates text with a chat completion model.
type Client struct {
	client *openai.Client
	cfg    Config
}

// NewClient creates a client. Model and BaseURL fall back to the Groq defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate sends prompt as a single user message and returns the first
// choice. Every failure is a *codescope.ServiceError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	// The request field is omitempty, so a literal zero would fall back to
	// the service default.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &codescope.ServiceError{Kind: codescope.KindMalformed, Cause: errors.New("no choices in completion")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &codescope.ServiceError{
			Kind:  codescope.KindMalformed,
			Cause: fmt.Errorf("empty completion (finish reason %q)", resp.Choices[0].FinishReason),
		}
	}
	return content, nil
}

// classify maps a go-openai error to a ServiceError.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &codescope.ServiceError{Kind: codescope.KindTimeout, Cause: err}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &codescope.ServiceError{Kind: codescope.KindCanceled, Cause: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err)
	}

	return &codescope.ServiceError{Kind: codescope.KindTransport, Cause: err}
}

func statusError(status int, err error) error {
	kind := codescope.KindService
	if status == http.StatusTooManyRequests {
		kind = codescope.KindRateLimit
	}
	return &codescope.ServiceError{Kind: kind, StatusCode: status, Cause: err}
}
