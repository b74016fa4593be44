package collector

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"TweetDigest/internal/domain"
)

// Column aliases accepted across extension versions, in lookup priority
// order. Absence of every alias means "no value", not an error.
var (
	textAliases      = []string{"tweet_text", "Tweet Text"}
	timestampAliases = []string{
		"Posted At (ISO)", "Posted At", "Posted at",
		"Captured At (ISO)", "Captured At", "captured_at",
		"日期", "Date", "date",
	}
	idAliases = []string{"Tweet ID", "tweet_id", "TweetId", "tweetId"}
)

// extractRecords parses every row of one export file. Rows with an empty
// text field are dropped; unparseable timestamps degrade to "no timestamp".
func extractRecords(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(stripBOM(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var records []domain.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		text := strings.TrimSpace(firstAlias(row, columns, textAliases))
		if text == "" {
			continue
		}

		records = append(records, domain.Record{
			Text:     text,
			PostedAt: domain.ParseTimestamp(firstAlias(row, columns, timestampAliases)),
			ID:       strings.TrimSpace(firstAlias(row, columns, idAliases)),
		})
	}

	return records, nil
}

func firstAlias(row []string, columns map[string]int, aliases []string) string {
	for _, alias := range aliases {
		idx, ok := columns[alias]
		if !ok || idx >= len(row) {
			continue
		}
		if value := row[idx]; value != "" {
			return value
		}
	}
	return ""
}

// stripBOM skips a leading UTF-8 byte order mark, which TweetDeck exports
// written on Windows tend to carry.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
