package ports

import (
	"context"
	"time"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/state"
)

// RecordSource harvests unseen records and advances the cursors in st.
type RecordSource interface {
	Collect(ctx context.Context, st *state.PipelineState, now time.Time) ([]domain.Record, []string, error)
}

// StateStore persists pipeline cursors between runs.
type StateStore interface {
	Load() (*state.PipelineState, error)
	Save(st *state.PipelineState) error
}

// Summarizer executes one prompt against the summarization endpoint.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message) (string, error)
}

// Deliverer hands the final report to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, summary string, files []string) error
}

// FeedWriter publishes digests to the static feed.
type FeedWriter interface {
	Append(ctx context.Context, entry domain.FeedEntry) error
}

// Archiver moves consumed export files out of the download directory.
type Archiver interface {
	Archive(ctx context.Context, files []string) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
