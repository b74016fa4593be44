// Package usecase orchestrates one digest run: harvest, dedupe, chunk,
// summarize, compress, deliver, persist.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store      ports.StateStore
	Source     ports.RecordSource
	Summarizer ports.Summarizer
	Deliverer  ports.Deliverer
	Feed       ports.FeedWriter
	Archiver   ports.Archiver
	Logger     *slog.Logger

	ChunkCharLimit int
	GroupLimit     int
}

// Pipeline implements the digest workflow.
type Pipeline struct {
	store      ports.StateStore
	source     ports.RecordSource
	summarizer ports.Summarizer
	deliverer  ports.Deliverer
	feed       ports.FeedWriter
	archiver   ports.Archiver
	logger     *slog.Logger

	chunkCharLimit int
	groupLimit     int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:          deps.Store,
		source:         deps.Source,
		summarizer:     deps.Summarizer,
		deliverer:      deps.Deliverer,
		feed:           deps.Feed,
		archiver:       deps.Archiver,
		logger:         logger,
		chunkCharLimit: deps.ChunkCharLimit,
		groupLimit:     deps.GroupLimit,
	}
}

// Run executes one full pipeline pass. State is persisted on every exit
// path: a run that produced no summary still commits its cursor advances,
// and a failed delivery never rolls them back.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (err error) {
	st, err := p.store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	defer func() {
		if saveErr := p.store.Save(st); saveErr != nil {
			p.logger.Error("persist state", "error", saveErr)
			if err == nil {
				err = fmt.Errorf("persist state: %w", saveErr)
			}
		}
	}()

	records, touched, err := p.source.Collect(ctx, st, now)
	if err != nil {
		return fmt.Errorf("collect records: %w", err)
	}

	if len(records) == 0 {
		p.logger.Info("no new tweets, nothing to summarize")
		return nil
	}

	unique := Deduplicate(records)
	if removed := len(records) - len(unique); removed > 0 {
		p.logger.Info("removed duplicate tweets", "unique", len(unique), "removed", removed)
	}

	chunks := ChunkRecords(unique, p.chunkCharLimit)

	var chunkSummaries []string
	for i, chunk := range chunks {
		p.logger.Info("summarizing chunk", "chunk", i+1, "chunks", len(chunks), "tweets", len(chunk))
		summary, sErr := p.summarizer.Summarize(ctx, buildChunkPrompt(chunk, i+1, len(chunks)))
		if sErr != nil {
			// Chunk-level loss is tolerable noise; the run continues.
			p.logger.Warn("chunk summarization failed", "chunk", i+1, "error", sErr)
			continue
		}
		chunkSummaries = append(chunkSummaries, summary)
	}

	if len(chunkSummaries) == 0 {
		p.logger.Error("every chunk failed, delivering failure report")
		return p.finalize(ctx, failureReport, touched, len(unique), 0, now)
	}

	var finalSummary string
	if len(chunkSummaries) == 1 {
		finalSummary = chunkSummaries[0]
	} else {
		compressed := p.compressSummaries(ctx, chunkSummaries, 1)
		p.logger.Info("synthesizing final report", "summaries", len(compressed))
		finalSummary, err = p.summarizer.Summarize(ctx, buildOverallPrompt(compressed))
		if err != nil {
			p.logger.Warn("final synthesis failed, concatenating merged summaries", "error", err)
			finalSummary = concatenationFallback(compressed)
			err = nil
		}
	}

	return p.finalize(ctx, finalSummary, touched, len(unique), len(chunkSummaries), now)
}

// finalize publishes whatever summary text was produced. It runs on the
// success path and on the all-chunks-failed path alike.
func (p *Pipeline) finalize(ctx context.Context, summary string, touched []string, tweetCount, chunkCount int, now time.Time) error {
	names := make([]string, 0, len(touched))
	for _, path := range touched {
		names = append(names, filepath.Base(path))
	}

	if p.feed != nil {
		entry := domain.FeedEntry{
			GeneratedAt: now.UTC().Format(time.RFC3339),
			TweetCount:  tweetCount,
			ChunkCount:  chunkCount,
			Summary:     summary,
			SourceFiles: names,
		}
		if err := p.feed.Append(ctx, entry); err != nil {
			p.logger.Warn("feed update failed", "error", err)
		}
	}

	deliverErr := p.deliverer.Deliver(ctx, summary, names)
	if deliverErr != nil {
		p.logger.Error("delivery failed", "error", deliverErr)
		deliverErr = fmt.Errorf("deliver summary: %w", deliverErr)
	}

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, touched); err != nil {
			p.logger.Warn("archive failed", "error", err)
		}
	}

	return deliverErr
}

func concatenationFallback(summaries []string) string {
	var b strings.Builder
	b.WriteString(fallbackNotice)
	for i, summary := range summaries {
		fmt.Fprintf(&b, "\n\nMerged summary %d:\n%s", i+1, summary)
	}
	return b.String()
}
