package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edibez/tokenagent/pkg/metrics"
	"github.com/edibez/tokenagent/pkg/types"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the service answers without any choice.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Config for an OpenAI-compatible chat completions endpoint
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client calls the completion service. It holds no conversation state.
type Client struct {
	api       *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
}

// New creates a completion client
func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     model,
		timeout:   timeout,
		maxTokens: cfg.MaxTokens,
	}
}

// Model returns the model requests are sent to.
func (c *Client) Model() string { return c.model }

// Complete sends role-tagged messages and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (text string, err error) {
	defer func() {
		metrics.Completions.WithLabelValues(metrics.Result(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens: c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
