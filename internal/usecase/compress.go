package usecase

import (
	"context"
	"strings"
)

// compressSummaries recursively merges partial summaries until at most
// groupLimit remain, so the final synthesis call stays bounded in size no
// matter how many chunks the run produced. Each stage partitions the input
// into consecutive groups of at most groupLimit and summarizes each group
// once; a failed group falls back to the verbatim concatenation of its
// members — data is never silently dropped at this stage.
func (p *Pipeline) compressSummaries(ctx context.Context, summaries []string, stage int) []string {
	if len(summaries) <= p.groupLimit {
		return summaries
	}

	totalGroups := (len(summaries) + p.groupLimit - 1) / p.groupLimit
	p.logger.Info("hierarchical merge stage", "stage", stage, "summaries", len(summaries), "groups", totalGroups)

	next := make([]string, 0, totalGroups)
	for start := 0; start < len(summaries); start += p.groupLimit {
		end := start + p.groupLimit
		if end > len(summaries) {
			end = len(summaries)
		}
		group := summaries[start:end]
		groupIndex := start/p.groupLimit + 1

		merged, err := p.summarizer.Summarize(ctx, buildIntermediatePrompt(group, stage, groupIndex, totalGroups))
		if err != nil {
			p.logger.Warn("merge group failed, concatenating raw summaries",
				"stage", stage, "group", groupIndex, "groups", totalGroups, "error", err)
			merged = strings.Join(group, "\n\n")
		}
		next = append(next, merged)
	}

	return p.compressSummaries(ctx, next, stage+1)
}
