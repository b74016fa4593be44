package usecase

import "TweetDigest/internal/domain"

// Deduplicate removes records with exact-duplicate text within the current
// run, preserving first-occurrence order. Cross-run dedup is the high-water
// mark's job; this pairs with it but is independent of it.
func Deduplicate(records []domain.Record) []domain.Record {
	seen := make(map[string]struct{}, len(records))
	unique := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Text]; ok {
			continue
		}
		seen[r.Text] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// ChunkRecords greedily partitions records into contiguous batches whose
// accumulated text length stays within maxChars. A single record longer
// than the budget becomes a chunk by itself rather than being split.
// Empty input yields zero chunks.
func ChunkRecords(records []domain.Record, maxChars int) [][]domain.Record {
	if len(records) == 0 {
		return nil
	}

	var (
		chunks  [][]domain.Record
		current []domain.Record
		length  int
	)

	for _, r := range records {
		n := len(r.Text)
		if len(current) > 0 && length+n > maxChars {
			chunks = append(chunks, current)
			current = nil
			length = 0
		}
		current = append(current, r)
		length += n
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}
