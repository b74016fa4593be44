package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/state"
)

type fakeStore struct {
	st        *state.PipelineState
	saved     int
	saveError error
}

func (f *fakeStore) Load() (*state.PipelineState, error) {
	if f.st == nil {
		f.st = state.New()
	}
	return f.st, nil
}

func (f *fakeStore) Save(st *state.PipelineState) error {
	f.saved++
	return f.saveError
}

type fakeSource struct {
	records []domain.Record
	touched []string
	err     error
}

func (f *fakeSource) Collect(ctx context.Context, st *state.PipelineState, now time.Time) ([]domain.Record, []string, error) {
	return f.records, f.touched, f.err
}

// scriptedSummarizer replays canned outcomes in call order; an entry with a
// non-nil error simulates a failed call.
type scriptedSummarizer struct {
	outcomes []summaryOutcome
	prompts  []string
}

type summaryOutcome struct {
	text string
	err  error
}

func (s *scriptedSummarizer) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	s.prompts = append(s.prompts, messages[0].Content)
	if len(s.outcomes) == 0 {
		return "", errors.New("unexpected summarize call")
	}
	next := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return next.text, next.err
}

type fakeDeliverer struct {
	summaries []string
	files     [][]string
	err       error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, summary string, files []string) error {
	f.summaries = append(f.summaries, summary)
	f.files = append(f.files, files)
	return f.err
}

type fakeFeed struct {
	entries []domain.FeedEntry
}

func (f *fakeFeed) Append(ctx context.Context, entry domain.FeedEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeArchiver struct {
	calls [][]string
}

func (f *fakeArchiver) Archive(ctx context.Context, files []string) error {
	f.calls = append(f.calls, files)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	if deps.ChunkCharLimit == 0 {
		deps.ChunkCharLimit = 8000
	}
	if deps.GroupLimit == 0 {
		deps.GroupLimit = 5
	}
	return NewPipeline(deps)
}

func TestRunNoRecordsPersistsStateOnly(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	deliverer := &fakeDeliverer{}
	feed := &fakeFeed{}
	p := newTestPipeline(PipelineDeps{
		Store:     store,
		Source:    &fakeSource{},
		Deliverer: deliverer,
		Feed:      feed,
	})

	require.NoError(t, p.Run(context.Background(), time.Now()))

	assert.Equal(t, 1, store.saved, "cursor advancement is still persisted")
	assert.Empty(t, deliverer.summaries)
	assert.Empty(t, feed.entries)
}

func TestRunSingleSurvivingChunkSkipsSynthesis(t *testing.T) {
	t.Parallel()

	// Two chunks, the first summarization call fails: the surviving chunk
	// summary is used directly as the final summary, no synthesis call.
	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{
		{err: errors.New("boom")},
		{text: "surviving summary"},
	}}
	deliverer := &fakeDeliverer{}
	store := &fakeStore{}

	p := newTestPipeline(PipelineDeps{
		Store:          store,
		Source:         &fakeSource{records: recordsFromTexts(strings.Repeat("a", 60), strings.Repeat("b", 60)), touched: []string{"/exports/x.csv"}},
		Summarizer:     summarizer,
		Deliverer:      deliverer,
		ChunkCharLimit: 100,
	})

	require.NoError(t, p.Run(context.Background(), time.Now()))

	require.Len(t, deliverer.summaries, 1)
	assert.Equal(t, "surviving summary", deliverer.summaries[0])
	assert.Len(t, summarizer.prompts, 2, "no synthesis call was made")
	assert.Equal(t, 1, store.saved)
}

func TestRunAllChunksFailedDeliversFailureReport(t *testing.T) {
	t.Parallel()

	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{
		{err: errors.New("down")},
	}}
	deliverer := &fakeDeliverer{}
	feed := &fakeFeed{}
	archiver := &fakeArchiver{}
	store := &fakeStore{}

	p := newTestPipeline(PipelineDeps{
		Store:      store,
		Source:     &fakeSource{records: recordsFromTexts("only tweet"), touched: []string{"/exports/x.csv"}},
		Summarizer: summarizer,
		Deliverer:  deliverer,
		Feed:       feed,
		Archiver:   archiver,
	})

	require.NoError(t, p.Run(context.Background(), time.Now()))

	require.Len(t, deliverer.summaries, 1)
	assert.Equal(t, failureReport, deliverer.summaries[0])
	require.Len(t, feed.entries, 1)
	assert.Equal(t, 0, feed.entries[0].ChunkCount)
	assert.Equal(t, [][]string{{"/exports/x.csv"}}, archiver.calls, "archival still proceeds")
	assert.Equal(t, 1, store.saved, "state is persisted on the failure branch")
}

func TestRunSynthesisFailureFallsBackToConcatenation(t *testing.T) {
	t.Parallel()

	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{
		{text: "summary one"},
		{text: "summary two"},
		{err: errors.New("synthesis down")},
	}}
	deliverer := &fakeDeliverer{}

	p := newTestPipeline(PipelineDeps{
		Store:          &fakeStore{},
		Source:         &fakeSource{records: recordsFromTexts(strings.Repeat("a", 60), strings.Repeat("b", 60))},
		Summarizer:     summarizer,
		Deliverer:      deliverer,
		ChunkCharLimit: 100,
	})

	require.NoError(t, p.Run(context.Background(), time.Now()))

	require.Len(t, deliverer.summaries, 1)
	final := deliverer.summaries[0]
	assert.Contains(t, final, fallbackNotice)
	assert.Contains(t, final, "summary one")
	assert.Contains(t, final, "summary two")
}

func TestRunDeliveryFailureStillPersistsAndArchives(t *testing.T) {
	t.Parallel()

	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{{text: "fine"}}}
	deliverer := &fakeDeliverer{err: errors.New("smtp broken")}
	archiver := &fakeArchiver{}
	store := &fakeStore{}

	p := newTestPipeline(PipelineDeps{
		Store:      store,
		Source:     &fakeSource{records: recordsFromTexts("tweet"), touched: []string{"/exports/x.csv"}},
		Summarizer: summarizer,
		Deliverer:  deliverer,
		Archiver:   archiver,
	})

	err := p.Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver summary")

	assert.Equal(t, 1, store.saved, "delivery failure never rolls back cursor state")
	assert.Len(t, archiver.calls, 1, "failed-but-reported delivery still archives")
}

func TestRunDeduplicatesBeforeChunking(t *testing.T) {
	t.Parallel()

	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{{text: "s"}}}
	feed := &fakeFeed{}

	p := newTestPipeline(PipelineDeps{
		Store:      &fakeStore{},
		Source:     &fakeSource{records: recordsFromTexts("same", "same", "other")},
		Summarizer: summarizer,
		Deliverer:  &fakeDeliverer{},
		Feed:       feed,
	})

	require.NoError(t, p.Run(context.Background(), time.Now()))

	require.Len(t, feed.entries, 1)
	assert.Equal(t, 2, feed.entries[0].TweetCount)
	require.Len(t, summarizer.prompts, 1)
	assert.Equal(t, 1, strings.Count(summarizer.prompts[0], "- same\n"))
}

func TestRunFeedEntryDescribesTheRun(t *testing.T) {
	t.Parallel()

	summarizer := &scriptedSummarizer{outcomes: []summaryOutcome{{text: "digest text"}}}
	feed := &fakeFeed{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := newTestPipeline(PipelineDeps{
		Store:      &fakeStore{},
		Source:     &fakeSource{records: recordsFromTexts("tweet"), touched: []string{"/exports/deep/batch.csv"}},
		Summarizer: summarizer,
		Deliverer:  &fakeDeliverer{},
		Feed:       feed,
	})

	require.NoError(t, p.Run(context.Background(), now))

	require.Len(t, feed.entries, 1)
	entry := feed.entries[0]
	assert.Equal(t, "digest text", entry.Summary)
	assert.Equal(t, now.Format(time.RFC3339), entry.GeneratedAt)
	assert.Equal(t, []string{"batch.csv"}, entry.SourceFiles, "feed and mail carry base names only")
}

func TestRunCollectErrorStillSavesState(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestPipeline(PipelineDeps{
		Store:     store,
		Source:    &fakeSource{err: errors.New("disk on fire")},
		Deliverer: &fakeDeliverer{},
	})

	err := p.Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, store.saved)
}

func TestCompressScenarioTwelveSummariesGroupLimitFive(t *testing.T) {
	t.Parallel()

	var calls int
	summarizer := summarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		calls++
		return fmt.Sprintf("merged %d", calls), nil
	})

	p := newTestPipeline(PipelineDeps{Summarizer: summarizer, GroupLimit: 5})

	input := make([]string, 12)
	for i := range input {
		input[i] = fmt.Sprintf("chunk summary %d", i+1)
	}

	out := p.compressSummaries(context.Background(), input, 1)

	assert.Equal(t, []string{"merged 1", "merged 2", "merged 3"}, out, "one stage: 12 -> 3, and 3 <= 5 stops")
	assert.Equal(t, 3, calls)
}

func TestCompressReturnsInputWhenWithinLimit(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(PipelineDeps{GroupLimit: 5})
	input := []string{"a", "b", "c"}
	assert.Equal(t, input, p.compressSummaries(context.Background(), input, 1))
}

func TestCompressFailedGroupConcatenatesInsteadOfDropping(t *testing.T) {
	t.Parallel()

	summarizer := summarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		return "", errors.New("merge endpoint down")
	})
	p := newTestPipeline(PipelineDeps{Summarizer: summarizer, GroupLimit: 2})

	out := p.compressSummaries(context.Background(), []string{"s1", "s2", "s3"}, 1)

	// Stage 1: ["s1\n\ns2", "s3"]; 2 <= 2 stops. Nothing is lost.
	require.Len(t, out, 2)
	joined := strings.Join(out, "\n\n")
	for _, s := range []string{"s1", "s2", "s3"} {
		assert.Contains(t, joined, s)
	}
}

func TestCompressTerminatesInLogStages(t *testing.T) {
	t.Parallel()

	stages := map[int]struct{}{}
	summarizer := summarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		return "m", nil
	})
	p := NewPipeline(PipelineDeps{
		Summarizer: summarizer,
		GroupLimit: 3,
		Logger:     slog.New(stageCounter{stages}),
	})

	input := make([]string, 27)
	for i := range input {
		input[i] = "s"
	}
	out := p.compressSummaries(context.Background(), input, 1)

	assert.LessOrEqual(t, len(out), 3)
	assert.Len(t, stages, 2, "27 -> 9 -> 3 takes exactly two merge stages")
}

type summarizerFunc func(ctx context.Context, messages []domain.Message) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	return f(ctx, messages)
}

// stageCounter records distinct "stage" attribute values from merge logs.
type stageCounter struct {
	stages map[int]struct{}
}

func (s stageCounter) Enabled(context.Context, slog.Level) bool { return true }

func (s stageCounter) Handle(_ context.Context, record slog.Record) error {
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "stage" {
			s.stages[int(attr.Value.Int64())] = struct{}{}
		}
		return true
	})
	return nil
}

func (s stageCounter) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s stageCounter) WithGroup(string) slog.Handler      { return s }
