package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"manualqa/internal/app"
	"manualqa/internal/llm"
)

const (
	msgEmptyQuery = "Query cannot be empty"
	msgProvider   = "The language model provider returned an error."
	msgTimeout    = "The language model provider did not respond in time."
	msgInternal   = "An error occurred while processing the request."
)

// Answerer is what the handlers need from the application.
type Answerer interface {
	Ask(ctx context.Context, query string) (string, error)
	Count() int
}

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON response for POST /query.
type QueryResponse struct {
	Answer string `json:"answer"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type healthBody struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// handleQuery bounds every request by timeout so that a slow provider
// still gets the 504 payload out before the server's write deadline.
func handleQuery(a Answerer, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("decode query body", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Message: msgInternal})
			return
		}

		answer, err := a.Ask(ctx, req.Query)
		if err != nil {
			status, body := classify(err)
			if status >= http.StatusInternalServerError {
				logger.Error("query failed", "status", status, "err", err)
			}
			writeJSON(w, status, body)
			return
		}
		writeJSON(w, http.StatusOK, QueryResponse{Answer: answer})
	}
}

// classify maps an Ask error to its status and payload.
func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, app.ErrEmptyQuery):
		return http.StatusBadRequest, errorBody{Error: msgEmptyQuery}
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: err.Error(), Message: msgTimeout}
	case errors.Is(err, llm.ErrProvider):
		return http.StatusBadGateway, errorBody{Error: err.Error(), Message: msgProvider}
	default:
		return http.StatusInternalServerError, errorBody{Error: err.Error(), Message: msgInternal}
	}
}

func handleHealth(a Answerer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthBody{Status: "ok", Chunks: a.Count()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
