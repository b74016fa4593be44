package app

import (
	"context"
	"log/slog"
	"time"

	"TweetDigest/internal/collector"
	"TweetDigest/internal/config"
	"TweetDigest/internal/infrastructure/archive"
	"TweetDigest/internal/infrastructure/feed"
	"TweetDigest/internal/infrastructure/llm"
	"TweetDigest/internal/infrastructure/mail"
	"TweetDigest/internal/infrastructure/scheduler"
	"TweetDigest/internal/logging"
	"TweetDigest/internal/state"
	"TweetDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	mailer    *mail.Mailer
	scheduler *scheduler.CronScheduler
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	source := collector.New(cfg.Paths.DownloadDir, cfg.Pipeline.RecencyWindow(),
		baseLogger.With("component", "collector"))

	summarizer := llm.NewClient(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxAttempts: cfg.LLM.MaxRetries,
		BaseBackoff: time.Duration(cfg.LLM.RetryBackoffSecond * float64(time.Second)),
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Logger:      baseLogger.With("component", "llm"),
	})

	mailer := mail.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.SMTP.Username, cfg.SMTP.Password, cfg.Email.From, cfg.Email.To)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:          state.NewStore(cfg.Paths.StateFile),
		Source:         source,
		Summarizer:     summarizer,
		Deliverer:      mailer,
		Feed:           feed.NewWriter(cfg.Paths.FeedFile, cfg.Pipeline.FeedMaxEntries, baseLogger.With("component", "feed")),
		Archiver:       archive.NewMover(cfg.Paths.ProcessedDir, baseLogger.With("component", "archive")),
		Logger:         baseLogger.With("component", "pipeline"),
		ChunkCharLimit: cfg.Pipeline.ChunkCharLimit,
		GroupLimit:     cfg.Pipeline.GroupLimit,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pipeline:  pipeline,
		mailer:    mailer,
		scheduler: scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location()),
	}
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context) error {
	return a.pipeline.Run(ctx, time.Now())
}

// Watch runs the pipeline on the configured cron schedule until ctx ends.
func (a *Application) Watch(ctx context.Context) error {
	job := func(trigger time.Time) {
		if err := a.pipeline.Run(ctx, trigger); err != nil {
			a.logger.Error("scheduled run failed", "error", err)
		}
	}

	if err := a.scheduler.Start(ctx, job); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// SendTestEmail delivers a canned message through the configured mailer.
func (a *Application) SendTestEmail(ctx context.Context) error {
	return a.mailer.Deliver(ctx, "This is a test email from tweetdigest.", nil)
}
