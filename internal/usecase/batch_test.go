package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TweetDigest/internal/domain"
)

func recordsFromTexts(texts ...string) []domain.Record {
	records := make([]domain.Record, len(texts))
	for i, text := range texts {
		records[i] = domain.Record{Text: text}
	}
	return records
}

func TestDeduplicatePreservesFirstOccurrenceOrder(t *testing.T) {
	t.Parallel()

	got := Deduplicate(recordsFromTexts("a", "b", "a", "c", "b"))
	assert.Equal(t, recordsFromTexts("a", "b", "c"), got)
}

func TestDeduplicateEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Deduplicate(nil))
}

func TestChunkRecordsRespectsBudget(t *testing.T) {
	t.Parallel()

	records := recordsFromTexts(
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
		strings.Repeat("d", 10),
	)

	chunks := ChunkRecords(records, 90)
	require.Len(t, chunks, 2)

	for _, chunk := range chunks {
		total := 0
		for _, r := range chunk {
			total += len(r.Text)
		}
		assert.LessOrEqual(t, total, 90)
	}

	// Concatenating all chunks in order reproduces the input sequence.
	var flattened []domain.Record
	for _, chunk := range chunks {
		flattened = append(flattened, chunk...)
	}
	assert.Equal(t, records, flattened)
}

func TestChunkRecordsOversizedItemBecomesSingleton(t *testing.T) {
	t.Parallel()

	records := recordsFromTexts("short", strings.Repeat("x", 500), "tail")
	chunks := ChunkRecords(records, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[1], 1)
	assert.Equal(t, 500, len(chunks[1][0].Text))
}

func TestChunkRecordsEmptyInput(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ChunkRecords(nil, 100))
}
