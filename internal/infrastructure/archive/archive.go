// Package archive moves consumed export files into dated subfolders so the
// download directory only ever holds unprocessed exports.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"TweetDigest/internal/ports"
)

// Mover relocates files under root/YYYY-MM-DD/, resolving name collisions
// with a numeric suffix.
type Mover struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.Archiver = (*Mover)(nil)

// NewMover binds the archiver to its destination root.
func NewMover(root string, logger *slog.Logger) *Mover {
	return &Mover{root: root, logger: logger, now: time.Now}
}

// Archive moves each file, skipping ones that vanished since collection.
// Per-file failures are logged, not fatal: a file left behind will simply
// be skipped by the cursor on the next run.
func (m *Mover) Archive(_ context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}

	dated := filepath.Join(m.root, m.now().Format("2006-01-02"))
	if err := os.MkdirAll(dated, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("file to archive no longer exists", "file", path)
			continue
		}

		target := collisionFreeTarget(dated, filepath.Base(path))
		if err := os.Rename(path, target); err != nil {
			m.logger.Warn("archiving file failed", "file", path, "error", err)
			continue
		}
	}

	return nil
}

func collisionFreeTarget(dir, name string) string {
	target := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
		target = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}
}
