package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"NewsIngest/internal/app"
	"NewsIngest/internal/config"
	"NewsIngest/internal/logging"
	"NewsIngest/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) (code int) {
	logger := logging.New("info", "text")
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unhandled panic", "panic", r, "stack", string(debug.Stack()))
			code = 2
		}
	}()

	if err := newRootCommand(&logger).ExecuteContext(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		return 1
	}
	return 0
}

func newRootCommand(logger **slog.Logger) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "newsingest",
		Short:         "Crawl news sources, extract articles and enrich them with a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config (default $NEWSINGEST_CONFIG)")

	// withApp loads config, builds the application and hands it to fn.
	withApp := func(fn func(ctx context.Context, a *app.Application) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			*logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)

			application, err := app.New(cmd.Context(), cfg, *logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Close(); err != nil {
					(*logger).Warn("close store", "error", err)
				}
			}()
			return fn(cmd.Context(), application)
		}
	}

	step := func(use, short string, fn func(*usecase.Pipeline, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app.Application) error {
				return fn(a.Pipeline(), ctx)
			}),
		}
	}

	root.AddCommand(
		step("crawl", "Resolve sources, ingest new entries and retry pending articles", (*usecase.Pipeline).Crawl),
		step("retry", "Re-attempt pending articles whose backoff has elapsed", (*usecase.Pipeline).Retry),
		step("score", "Score staged articles and promote relevant ones", (*usecase.Pipeline).Score),
		step("enrich", "Categorize recent articles that lack AI fields", (*usecase.Pipeline).Enrich),
		step("run", "Crawl, retry, score and enrich in one run", (*usecase.Pipeline).Run),
		&cobra.Command{
			Use:   "schedule",
			Short: "Run the full pipeline on the configured cron expression",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				version := "devel"
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					version = info.Main.Version
				}
				fmt.Fprintf(cmd.OutOrStdout(), "newsingest %s\n", version)
			},
		},
	)
	return root
}
