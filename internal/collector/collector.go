// Package collector scans the export directory for rows no previous run has
// consumed, advancing the persisted cursors as it goes.
package collector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/ports"
	"TweetDigest/internal/state"
)

const (
	// A file whose mtime advanced beyond the stored cursor value by more
	// than this is treated as rewritten from scratch (truncated-and-
	// reappended exports) and its row cursor resets to zero.
	rewriteEpsilon = 1e-3
	// Slack applied when comparing file mtimes against the recency cutoff,
	// so filesystem timestamp rounding never excludes a boundary file.
	cutoffEpsilon = 1e-6
)

// Collector enumerates export files and emits only unseen records.
type Collector struct {
	dir    string
	window time.Duration
	logger *slog.Logger
}

var _ ports.RecordSource = (*Collector)(nil)

// New binds the collector to a directory and a recency window.
func New(dir string, window time.Duration, logger *slog.Logger) *Collector {
	return &Collector{dir: dir, window: window, logger: logger}
}

// Collect returns the ordered list of new records and the files that
// contributed them, mutating st in place to reflect what was consumed.
// Files are visited oldest-mtime first for deterministic replay order.
func (c *Collector) Collect(ctx context.Context, st *state.PipelineState, now time.Time) ([]domain.Record, []string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	files := c.statCandidates(entries)
	sort.Slice(files, func(i, j int) bool { return files[i].mtime < files[j].mtime })

	existing := make(map[string]struct{}, len(files))
	for _, f := range files {
		existing[f.path] = struct{}{}
	}

	// The cutoff bounds how much history is reconsidered after a long
	// outage, and never moves backward past already-processed files.
	cutoff := unixSeconds(now.Add(-c.window))
	if st.LastProcessedFileMtime > cutoff {
		cutoff = st.LastProcessedFileMtime
	}

	tracker := newMarkTracker(st.LastProcessed)
	maxFileMtime := st.LastProcessedFileMtime

	var (
		records []domain.Record
		touched []string
	)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if f.mtime+cutoffEpsilon < cutoff {
			continue
		}
		if f.mtime > maxFileMtime {
			maxFileMtime = f.mtime
		}

		cursor := st.Files[f.path]
		processedRows := cursor.ProcessedRows
		if f.mtime > cursor.Mtime+rewriteEpsilon {
			processedRows = 0
		}

		rows, err := extractRecords(f.path)
		if err != nil {
			c.logger.Warn("skipping unreadable export", "file", f.path, "error", err)
			continue
		}

		if len(rows) <= processedRows {
			st.Files[f.path] = state.FileCursor{ProcessedRows: len(rows), Mtime: f.mtime}
			continue
		}

		var fresh []domain.Record
		for _, row := range rows[processedRows:] {
			if st.LastProcessed.Blocks(row) {
				continue
			}
			fresh = append(fresh, row)
			tracker.observe(row)
		}

		if len(fresh) > 0 {
			records = append(records, fresh...)
			touched = append(touched, f.path)
		} else {
			c.logger.Info("no rows newer than processed mark", "file", filepath.Base(f.path))
		}

		// The position cursor advances even when every candidate row was
		// filtered as a duplicate.
		st.Files[f.path] = state.FileCursor{ProcessedRows: len(rows), Mtime: f.mtime}
	}

	for path := range st.Files {
		if _, ok := existing[path]; !ok {
			delete(st.Files, path)
		}
	}

	if mark, changed := tracker.result(); changed {
		st.LastProcessed = mark
	}
	st.LastProcessedFileMtime = maxFileMtime

	return records, touched, nil
}

type candidate struct {
	path  string
	mtime float64
}

func (c *Collector) statCandidates(entries []os.DirEntry) []candidate {
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		fi, err := os.Stat(path)
		if err != nil {
			// Vanished between enumeration and stat; not a failure.
			c.logger.Info("export disappeared before stat", "file", path)
			continue
		}
		files = append(files, candidate{path: path, mtime: unixSeconds(fi.ModTime())})
	}
	return files
}

// markTracker accumulates the maximum timestamp among surviving records and
// the ids/texts sharing that exact maximum, seeded from the previous mark so
// the high-water mark never moves backward.
type markTracker struct {
	mark           state.HighWaterMark
	sawTimestamped bool
	advancedBeyond bool
}

func newMarkTracker(previous state.HighWaterMark) *markTracker {
	t := &markTracker{}
	if !previous.Timestamp.IsZero() {
		t.mark = previous.Clone()
	} else {
		t.mark = state.HighWaterMark{IDs: map[string]struct{}{}, Texts: map[string]struct{}{}}
	}
	return t
}

func (t *markTracker) observe(r domain.Record) {
	if !r.HasTimestamp() {
		return
	}
	t.sawTimestamped = true

	switch {
	case t.mark.Timestamp.IsZero() || r.PostedAt.After(t.mark.Timestamp):
		t.mark.Timestamp = r.PostedAt
		t.mark.IDs = map[string]struct{}{}
		t.mark.Texts = map[string]struct{}{r.Text: {}}
		if r.ID != "" {
			t.mark.IDs[r.ID] = struct{}{}
		}
		t.advancedBeyond = true
	case r.PostedAt.Equal(t.mark.Timestamp):
		if r.ID != "" {
			t.mark.IDs[r.ID] = struct{}{}
		}
		t.mark.Texts[r.Text] = struct{}{}
	}
}

func (t *markTracker) result() (state.HighWaterMark, bool) {
	if t.mark.Timestamp.IsZero() {
		return state.HighWaterMark{}, false
	}
	if t.sawTimestamped || t.advancedBeyond {
		return t.mark, true
	}
	return state.HighWaterMark{}, false
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
