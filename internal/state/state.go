// Package state owns the single durable artifact shared between runs: the
// per-file read cursors, the high-water mark used for cross-run dedup, and
// the overall last-processed-file mtime watermark.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"TweetDigest/internal/domain"
)

// FileCursor tracks how far into one export file previous runs have read.
// Mtime is kept as unix seconds with fraction, matching the on-disk schema.
type FileCursor struct {
	ProcessedRows int     `json:"processed_rows"`
	Mtime         float64 `json:"mtime"`
}

// HighWaterMark is the timestamp-keyed dedup cursor. Row cursors alone
// cannot prevent re-emission when a file is rewritten with overlapping
// content; the mark catches re-ingested rows by time and content instead
// of by position.
type HighWaterMark struct {
	Timestamp time.Time
	IDs       map[string]struct{}
	Texts     map[string]struct{}
}

// Blocks reports whether the record must be discarded as already processed.
// Records strictly before the mark are always discarded; records exactly at
// the mark are discarded when their id or text is already a member. A record
// without a timestamp cannot be ordered, so it is conservatively discarded
// only when its exact text is known.
func (h *HighWaterMark) Blocks(r domain.Record) bool {
	if h.Timestamp.IsZero() {
		return false
	}

	if !r.HasTimestamp() {
		_, seen := h.Texts[r.Text]
		return seen
	}

	if r.PostedAt.Before(h.Timestamp) {
		return true
	}
	if r.PostedAt.Equal(h.Timestamp) {
		if r.ID != "" {
			if _, seen := h.IDs[r.ID]; seen {
				return true
			}
		}
		_, seen := h.Texts[r.Text]
		return seen
	}

	return false
}

// Clone returns a deep copy safe to mutate while the original is still
// being consulted for filtering.
func (h *HighWaterMark) Clone() HighWaterMark {
	out := HighWaterMark{Timestamp: h.Timestamp, IDs: map[string]struct{}{}, Texts: map[string]struct{}{}}
	for id := range h.IDs {
		out.IDs[id] = struct{}{}
	}
	for text := range h.Texts {
		out.Texts[text] = struct{}{}
	}
	return out
}

// PipelineState aggregates every cursor the pipeline persists between runs.
type PipelineState struct {
	Files                  map[string]FileCursor
	LastProcessed          HighWaterMark
	LastProcessedFileMtime float64
}

// New returns an empty state ready for a first run.
func New() *PipelineState {
	return &PipelineState{
		Files: map[string]FileCursor{},
		LastProcessed: HighWaterMark{
			IDs:   map[string]struct{}{},
			Texts: map[string]struct{}{},
		},
	}
}

// diskState is the canonical serialized schema. Field names are shared with
// earlier generations of the tool, so old state files keep loading.
type diskState struct {
	ProcessedFiles         map[string]FileCursor `json:"processed_files"`
	LastProcessed          diskHighWaterMark     `json:"last_processed"`
	LastProcessedFileMtime float64               `json:"last_processed_file_mtime"`
}

type diskHighWaterMark struct {
	Timestamp string   `json:"timestamp"`
	IDs       []string `json:"ids"`
	Texts     []string `json:"texts"`
}

// Store persists PipelineState as a JSON document. Loading is tolerant:
// every legacy shape the tool ever wrote is normalized into the current
// schema instead of failing.
type Store struct {
	path string
}

// NewStore binds a store to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and normalizes the state file. A missing or corrupt file
// yields a fresh state, never an error: losing the cursor only means
// re-scanning, which the high-water mark makes safe.
func (s *Store) Load() (*PipelineState, error) {
	st := New()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return st, nil
	}

	normalizeCursors(doc.Get("processed_files"), st)
	normalizeHighWaterMark(doc.Get("last_processed"), st)

	if v := doc.Get("last_processed_file_mtime"); v.Exists() {
		st.LastProcessedFileMtime = v.Float()
	}

	return st, nil
}

func normalizeCursors(processed gjson.Result, st *PipelineState) {
	switch {
	case processed.IsArray():
		// Oldest shape: a bare list of paths with no row counts.
		for _, item := range processed.Array() {
			if path := item.String(); path != "" {
				st.Files[path] = FileCursor{}
			}
		}
	case processed.IsObject():
		processed.ForEach(func(key, value gjson.Result) bool {
			cursor := FileCursor{}
			if value.IsObject() {
				cursor.ProcessedRows = int(value.Get("processed_rows").Int())
				cursor.Mtime = value.Get("mtime").Float()
			} else if value.Type == gjson.Number {
				// Intermediate shape: a plain row count.
				cursor.ProcessedRows = int(value.Int())
			}
			if cursor.ProcessedRows < 0 {
				cursor.ProcessedRows = 0
			}
			st.Files[key.String()] = cursor
			return true
		})
	}
}

func normalizeHighWaterMark(last gjson.Result, st *PipelineState) {
	if !last.IsObject() {
		return
	}

	st.LastProcessed.Timestamp = domain.ParseTimestamp(last.Get("timestamp").String())

	for _, key := range []string{"ids", "texts"} {
		target := st.LastProcessed.IDs
		if key == "texts" {
			target = st.LastProcessed.Texts
		}
		value := last.Get(key)
		if value.IsArray() {
			for _, item := range value.Array() {
				if v := item.String(); v != "" {
					target[v] = struct{}{}
				}
			}
		} else if value.Type == gjson.String || value.Type == gjson.Number {
			// Legacy scalar form.
			if v := value.String(); v != "" {
				target[v] = struct{}{}
			}
		}
	}
}

// Save writes the state atomically via a temp file rename so a crash
// mid-write never truncates the previous state.
func (s *Store) Save(st *PipelineState) error {
	disk := diskState{
		ProcessedFiles:         st.Files,
		LastProcessedFileMtime: st.LastProcessedFileMtime,
		LastProcessed: diskHighWaterMark{
			IDs:   sortedKeys(st.LastProcessed.IDs),
			Texts: sortedKeys(st.LastProcessed.Texts),
		},
	}
	if !st.LastProcessed.Timestamp.IsZero() {
		disk.LastProcessed.Timestamp = st.LastProcessed.Timestamp.Format(time.RFC3339Nano)
	}

	raw, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
