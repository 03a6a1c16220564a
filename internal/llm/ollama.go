package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// EnsureOllamaModel checks that Ollama answers at baseURL and pulls model
// when it is not installed yet.
func EnsureOllamaModel(ctx context.Context, httpClient *http.Client, baseURL, model string, logger *slog.Logger) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	installed, err := ollamaModels(ctx, httpClient, baseURL)
	if err != nil {
		return fmt.Errorf("ollama is not running or not reachable at %s: %w", baseURL, err)
	}
	for _, name := range installed {
		if name == model || strings.TrimSuffix(name, ":latest") == model {
			logger.Info("ollama model available", "model", model)
			return nil
		}
	}

	logger.Info("ollama model not found, pulling", "model", model)
	body, _ := json.Marshal(map[string]any{"name": model, "stream": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pull model %s: %w", model, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pull model %s: status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	logger.Info("ollama model pulled", "model", model)
	return nil
}

func ollamaModels(ctx context.Context, httpClient *http.Client, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}
