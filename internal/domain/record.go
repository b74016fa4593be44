package domain

import "time"

// Record is a single harvested tweet row. PostedAt and ID are optional:
// exports produced by older extension versions carry neither field.
type Record struct {
	Text     string
	PostedAt time.Time
	ID       string
}

// HasTimestamp reports whether the export provided a usable posted-at value.
func (r Record) HasTimestamp() bool {
	return !r.PostedAt.IsZero()
}

// Message is one role/content pair sent to the chat-completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FeedEntry is one digest published to the static feed.
type FeedEntry struct {
	ID          string   `json:"id"`
	GeneratedAt string   `json:"generated_at"`
	TweetCount  int      `json:"tweet_count"`
	ChunkCount  int      `json:"chunk_count"`
	Summary     string   `json:"summary"`
	SourceFiles []string `json:"source_files"`
}
