// Package merge turns Page Content Saver TXT exports into a single CSV
// suitable for trend analysis.
package merge

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"TweetDigest/internal/domain"
)

// Options configures one merge run.
type Options struct {
	InputDir   string
	OutputPath string
	Patterns   []string
}

// DefaultPatterns matches the file names the browser extension produces,
// including the localized download prefix.
var DefaultPatterns = []string{"page-content-*.txt", "下载*.txt"}

var csvHeader = []string{
	"captured_at", "captured_local", "url", "title",
	"word_count", "char_count", "content", "source_file",
}

type row struct {
	capturedAt string
	url        string
	title      string
	body       string
	sourceFile string
}

// Run merges every matching TXT export under opts.InputDir into one CSV and
// returns the number of rows written. Unparseable files are logged and
// skipped, never fatal.
func Run(opts Options, logger *log.Logger) (int, error) {
	info, err := os.Stat(opts.InputDir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", opts.InputDir)
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	files, err := findExports(opts.InputDir, patterns)
	if err != nil {
		return 0, fmt.Errorf("scan exports: %w", err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no TXT exports found for patterns %s in %s",
			strings.Join(patterns, ","), opts.InputDir)
	}

	rows := make([]row, 0, len(files))
	for _, path := range files {
		r, err := parseExport(path)
		if err != nil {
			logger.Printf("warning: failed to parse %s: %v", path, err)
			continue
		}
		rows = append(rows, r)
	}

	if err := writeCSV(opts.OutputPath, rows); err != nil {
		return 0, err
	}

	return len(rows), nil
}

func findExports(dir string, patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		for _, pattern := range patterns {
			ok, mErr := filepath.Match(pattern, d.Name())
			if mErr != nil {
				return fmt.Errorf("bad pattern %q: %w", pattern, mErr)
			}
			if ok {
				if _, dup := seen[path]; !dup {
					seen[path] = struct{}{}
					files = append(files, path)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// parseExport extracts the Title:/URL:/Captured At: header block and the
// body that follows the first blank line after it.
func parseExport(path string) (row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return row{}, err
	}

	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	r := row{sourceFile: filepath.Base(path)}
	metaEnd := -1

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "Title:"):
			r.title = strings.TrimSpace(strings.TrimPrefix(stripped, "Title:"))
		case strings.HasPrefix(stripped, "URL:"):
			r.url = strings.TrimSpace(strings.TrimPrefix(stripped, "URL:"))
		case strings.HasPrefix(stripped, "Captured At:"):
			r.capturedAt = strings.TrimSpace(strings.TrimPrefix(stripped, "Captured At:"))
		case stripped == "" && i >= 2:
			metaEnd = i
		}
		if metaEnd != -1 {
			break
		}
	}

	if metaEnd == -1 {
		metaEnd = len(lines)
		if metaEnd > 3 {
			metaEnd = 3
		}
	}

	r.body = strings.TrimSpace(strings.Join(lines[metaEnd:], "\n"))
	return r, nil
}

func writeCSV(path string, rows []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.capturedAt,
			localTime(r.capturedAt),
			r.url,
			r.title,
			strconv.Itoa(len(strings.Fields(r.body))),
			strconv.Itoa(len([]rune(r.body))),
			r.body,
			r.sourceFile,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// localTime re-renders the captured timestamp canonically; unparseable
// values pass through untouched.
func localTime(iso string) string {
	if iso == "" {
		return ""
	}
	t := domain.ParseTimestamp(iso)
	if t.IsZero() {
		return iso
	}
	return t.Format("2006-01-02T15:04:05Z07:00")
}
