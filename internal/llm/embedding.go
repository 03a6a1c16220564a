package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
)

// ollamaStatusPrefix starts the error chromem returns for a non-200 reply.
const ollamaStatusPrefix = "error response from the embedding API: "

// EmbeddingFunc adapts the client to the vector index.
func (c *Client) EmbeddingFunc(model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.Embed(ctx, model, text)
	}
}

// OllamaEmbeddingFunc embeds through a local Ollama server. The library
// function has no timeout or retry of its own, so both come from p.
func OllamaEmbeddingFunc(model, baseURL string, p RetryPolicy) chromem.EmbeddingFunc {
	embed := chromem.NewEmbeddingFuncOllama(model, baseURL+"/api")
	p.Retryable = ollamaRetryable
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := retry(ctx, p, func(ctx context.Context) ([]float32, error) {
			return embed(ctx, text)
		})
		if err != nil {
			return nil, classify("ollama embedding", err)
		}
		return v, nil
	}
}

// ollamaRetryable retries 429, 5xx and failures that carry no status at
// all. Any other status is final.
func ollamaRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	code, ok := ollamaStatus(err)
	if !ok {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// ollamaStatus extracts the HTTP status code from a chromem Ollama error.
func ollamaStatus(err error) (int, bool) {
	rest, found := strings.CutPrefix(err.Error(), ollamaStatusPrefix)
	if !found {
		return 0, false
	}
	code, convErr := strconv.Atoi(strings.SplitN(rest, " ", 2)[0])
	if convErr != nil {
		return 0, false
	}
	return code, true
}
