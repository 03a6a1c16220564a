// Package cli defines the manualqa command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"manualqa/internal/app"
	"manualqa/internal/config"
	"manualqa/internal/logging"
	"manualqa/internal/telemetry"
)

// runtime is filled by the root command before any subcommand runs.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	stderr io.Writer
}

// run executes f with tracing installed and flushes spans when f returns.
func (rt *runtime) run(ctx context.Context, f func(context.Context) error) error {
	shutdown, err := telemetry.Setup(rt.cfg.TraceExporter, rt.stderr)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			rt.logger.Warn("flush traces", "err", err)
		}
	}()
	return f(ctx)
}

// flagEnv maps persistent flags to the variables they override.
var flagEnv = map[string]string{
	"reference-doc": "REFERENCE_DOC",
	"index-dir":     "INDEX_DIR",
	"addr":          "LISTEN_ADDR",
}

func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "manualqa",
		Short:         "Answer questions about a reference manual with retrieval-augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for name, key := range flagEnv {
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					os.Setenv(key, f.Value.String())
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			rt.cfg, rt.logger, rt.stderr = cfg, logger, cmd.ErrOrStderr()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				return serve(ctx, rt)
			})
		},
	}

	root.PersistentFlags().String("reference-doc", "", "reference document to index (.pdf, .md, .txt)")
	root.PersistentFlags().String("index-dir", "", "directory of the persisted index")
	root.PersistentFlags().String("addr", "", "HTTP listen address")

	root.AddCommand(
		newServeCmd(rt),
		newIndexCmd(rt),
		newAskCmd(rt),
		newChatCmd(rt),
	)
	return root
}

// bootstrap builds or loads the index. The returned App is ready.
func bootstrap(ctx context.Context, rt *runtime) (*app.App, error) {
	rt.logger.Info("starting",
		"reference_doc", rt.cfg.ReferenceDoc,
		"index_dir", rt.cfg.IndexDir,
		"embedding_provider", rt.cfg.EmbeddingProvider,
		"embedding_model", rt.cfg.EmbeddingModel,
		"chat_model", rt.cfg.ChatModel,
	)
	a, err := app.New(rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	if err := a.Init(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return a, nil
}

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
