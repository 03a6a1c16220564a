package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	answerColor = color.New(color.FgGreen)
	errorColor  = color.New(color.FgRed)
)

// Run answers one question per input line until in is closed or ctx is
// cancelled. Errors for a single question are printed and the loop goes on.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask a question about the manual (one per line). Ctrl+C to exit.")

	scanner := bufio.NewScanner(in)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for {
		promptColor.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		answer, err := a.Ask(ctx, line)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			a.logger.Error("question failed", "err", err)
			errorColor.Fprintf(out, "error: %v\n", err)
			continue
		}
		answerColor.Fprintln(out, answer)
	}
}
