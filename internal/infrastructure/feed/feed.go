// Package feed maintains the static JSON feed served from the docs folder.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/ports"
)

// Writer prepends digest entries to a feed.json document, keeping at most
// maxEntries. A corrupt or missing feed is regenerated, never fatal.
type Writer struct {
	path       string
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.FeedWriter = (*Writer)(nil)

// NewWriter binds the writer to a feed path and entry cap.
func NewWriter(path string, maxEntries int, logger *slog.Logger) *Writer {
	if maxEntries <= 0 {
		maxEntries = 48
	}
	return &Writer{path: path, maxEntries: maxEntries, logger: logger, now: time.Now}
}

type feedDocument struct {
	Entries     []domain.FeedEntry `json:"entries"`
	LastUpdated string             `json:"last_updated"`
}

// Append inserts the entry at the head of the feed and rewrites the file.
func (w *Writer) Append(_ context.Context, entry domain.FeedEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.GeneratedAt == "" {
		entry.GeneratedAt = w.now().UTC().Format(time.RFC3339)
	}

	doc := feedDocument{Entries: append([]domain.FeedEntry{entry}, w.loadEntries()...)}
	if len(doc.Entries) > w.maxEntries {
		doc.Entries = doc.Entries[:w.maxEntries]
	}
	doc.LastUpdated = entry.GeneratedAt

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	if err := os.WriteFile(w.path, raw, 0o644); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}

	return nil
}

// loadEntries reads the previous feed tolerantly: individual malformed
// entries are dropped and an unreadable document starts the feed over.
func (w *Writer) loadEntries() []domain.FeedEntry {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) && w.logger != nil {
			w.logger.Warn("feed unreadable, regenerating", "error", err)
		}
		return nil
	}

	entries := gjson.GetBytes(raw, "entries")
	if !entries.IsArray() {
		if w.logger != nil {
			w.logger.Warn("feed content malformed, regenerating")
		}
		return nil
	}

	var out []domain.FeedEntry
	for _, item := range entries.Array() {
		if !item.IsObject() {
			continue
		}
		e := domain.FeedEntry{
			ID:          item.Get("id").String(),
			GeneratedAt: item.Get("generated_at").String(),
			TweetCount:  int(item.Get("tweet_count").Int()),
			ChunkCount:  int(item.Get("chunk_count").Int()),
			Summary:     item.Get("summary").String(),
		}
		for _, name := range item.Get("source_files").Array() {
			e.SourceFiles = append(e.SourceFiles, name.String())
		}
		out = append(out, e)
	}
	return out
}
