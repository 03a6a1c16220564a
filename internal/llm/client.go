// Package llm talks to the language model provider: chat completions for
// answer synthesis and embeddings for the vector index.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client is an OpenAI-compatible API client. Timeouts and retries are
// applied by the SDK per request.
type Client struct {
	api    openai.Client
	logger *slog.Logger
}

type Options struct {
	APIKey     string
	BaseURL    string // empty means api.openai.com
	Retry      RetryPolicy
	HTTPClient *http.Client
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.Retry.MaxRetries),
	}
	if opts.Retry.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Retry.Timeout))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Client{
		api:    openai.NewClient(reqOpts...),
		logger: logger,
	}
}

// Chat sends one chat completion request and returns the first choice's
// content.
func (c *Client) Chat(ctx context.Context, model string, temperature float64, messages ...openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", classify("chat completion", errors.New("no choices in response"))
	}

	c.logger.Debug("chat completion done",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text produced by model.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify("embedding", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, classify("embedding", fmt.Errorf("no embedding returned for model %s", model))
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
