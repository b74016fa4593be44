package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"TweetDigest/internal/app"
	"TweetDigest/internal/config"
	"TweetDigest/internal/logging"
	"TweetDigest/internal/merge"
	"TweetDigest/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tweetdigest",
		Short:         "Summarize freshly exported TweetDeck CSV files and email the trend report",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newRunCommand(), newWatchCommand(), newTestEmailCommand(), newMergeCommand())
	return root
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass over the export directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Logging.Level)
			application := app.New(cfg, log)
			if err := application.RunOnce(cmd.Context()); err != nil {
				log.Error("run failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline on the configured cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Logging.Level)
			application := app.New(cfg, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("watching", "cron", cfg.Scheduler.CronExpression, "dir", cfg.Paths.DownloadDir)
			return application.Watch(ctx)
		},
	}
}

func newTestEmailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test-email",
		Short: "Send a test message through the configured SMTP delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Logging.Level)
			application := app.New(cfg, log)
			if err := application.SendTestEmail(cmd.Context()); err != nil {
				return err
			}
			log.Info("test email sent")
			return nil
		},
	}
}

func newMergeCommand() *cobra.Command {
	var (
		output   string
		patterns []string
	)

	cmd := &cobra.Command{
		Use:   "merge [input-dir]",
		Short: "Merge Page Content Saver TXT exports into a CSV for analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := defaultMergeInput()
			if len(args) == 1 {
				input = args[0]
			}

			log := logger.New("merge")
			count, err := merge.Run(merge.Options{
				InputDir:   input,
				OutputPath: output,
				Patterns:   patterns,
			}, log)
			if err != nil {
				return err
			}
			log.Printf("wrote %d rows to %s", count, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "merged_page_content.csv", "output CSV path")
	cmd.Flags().StringSliceVar(&patterns, "patterns", merge.DefaultPatterns, "glob patterns for TXT exports")
	return cmd
}

func defaultMergeInput() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}
