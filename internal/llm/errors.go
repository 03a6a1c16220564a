package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/openai/openai-go"
)

var (
	// ErrTimeout marks a provider call that ran out of time.
	ErrTimeout = errors.New("model provider timed out")
	// ErrProvider marks a provider call that failed for any other reason:
	// an API error status, a transport failure or an unusable response.
	ErrProvider = errors.New("model provider error")
)

// classify wraps err from a provider call with ErrTimeout or ErrProvider.
// Cancellation by the caller is passed through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: status %d: %w", op, ErrProvider, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}
