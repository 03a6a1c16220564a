package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"manualqa/internal/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build or load the index and serve POST /query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				return serve(ctx, rt)
			})
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	a, err := bootstrap(ctx, rt)
	if err != nil {
		return err
	}
	srv := server.New(a, server.Options{
		Addr:           rt.cfg.ListenAddr,
		CORSOrigin:     rt.cfg.CORSOrigin,
		RequestTimeout: rt.cfg.RequestTimeout(),
	}, rt.logger)
	return srv.Run(ctx)
}

func newIndexCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the index if it does not exist yet, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				a, err := bootstrap(ctx, rt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "index ready: %d chunks in %s\n", a.Count(), rt.cfg.IndexDir)
				return nil
			})
		},
	}
}

func newAskCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				a, err := bootstrap(ctx, rt)
				if err != nil {
					return err
				}
				answer, err := a.Ask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), answer)
				return nil
			})
		},
	}
}

func newChatCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Answer questions read from stdin, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				a, err := bootstrap(ctx, rt)
				if err != nil {
					return err
				}
				return a.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}
