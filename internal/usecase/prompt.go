package usecase

import (
	"fmt"
	"strings"

	"TweetDigest/internal/domain"
)

// failureReport is the fixed summary used when every chunk's summarization
// call failed. The pipeline always produces some output artifact.
const failureReport = "Tweet digest failed for this window: none of the chunk analyses succeeded. Please retry later."

// fallbackNotice labels the concatenation used when the final synthesis
// call fails.
const fallbackNotice = "[NOTICE] Automatic synthesis failed; below is a concatenation of the merged summaries, please review manually."

func buildChunkPrompt(chunk []domain.Record, index, total int) []domain.Message {
	var bullets strings.Builder
	for _, r := range chunk {
		bullets.WriteString("- ")
		bullets.WriteString(r.Text)
		bullets.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are a professional Twitter content analyst working on tweet chunk %d/%d.
Read the tweet texts in this chunk and extract the key AI-related information, paying particular attention to:
- new AI products, tools, or usage patterns that may be emerging, and their highlights;
- topics, trends, or sentiment shifts the community is discussing;
- tips, tutorials, case studies, or insights worth keeping;
- high-value tweets that are candidates for the final TOP 10.

Output requirements:
- use at most 6 bullet points, each starting with "•";
- write each bullet as "topic/product — conclusion; quote: <key sentence>";
- the quote must cite a core sentence from this chunk's tweets, trimmed with ellipses where needed so the meaning stays intact.

Tweet list:
%s`, index, total, bullets.String())

	return []domain.Message{{Role: "user", Content: strings.TrimSpace(prompt)}}
}

func buildIntermediatePrompt(group []string, stage, groupIndex, totalGroups int) []domain.Message {
	var joined strings.Builder
	for i, summary := range group {
		if i > 0 {
			joined.WriteString("\n\n")
		}
		fmt.Fprintf(&joined, "Summary %d:\n%s", i+1, summary)
	}

	prompt := fmt.Sprintf(`You are performing stage %d of a hierarchical merge for an AI trend digest (%d groups in total, this is group %d).
Read the summaries below, keep the non-duplicated core facts, and condense the key information into 4-6 bullet points, following:
- each bullet starts with "• " and stays under 120 words;
- name the products/topics involved and state the main insight or figures;
- when quoting, keep verbatim fragments or use ellipses;
- do not invent information that does not appear in the input.

Summaries to merge:
%s`, stage, totalGroups, groupIndex, joined.String())

	return []domain.Message{{Role: "user", Content: strings.TrimSpace(prompt)}}
}

func buildOverallPrompt(summaries []string) []domain.Message {
	var joined strings.Builder
	for i, summary := range summaries {
		if i > 0 {
			joined.WriteString("\n\n")
		}
		fmt.Fprintf(&joined, "Chunk %d summary:\n%s", i+1, summary)
	}

	prompt := fmt.Sprintf(`You are a professional Twitter content analyst focused on the latest AI news. Follow these writing principles:
- be specific; avoid vague umbrella terms like "AI" or "Web3" unless immediately followed by concrete context;
- whenever you cite a tweet, quote its key sentence verbatim, using ellipses where needed to keep the meaning intact;
- conclusions must focus on actionable information or clear insight.

Combine the chunk summaries below into the trend analysis for the most recent window, strictly following this template:

1. Top trend keywords: list 3-5 concrete hot terms, formatted "keyword (reason / related product)".
2. AI products mentioned and their highlights: list 3-5 entries, formatted "product | estimated mention count | highlight commentary (feature or result)".
3. Tips / tutorials / field cases: 3-5 entries structured as "author | method steps | value delivered (quote the key point)".
4. Most valuable tweets TOP 10:
   1. Title: capture the topic or product
      Tweet quote: <verbatim key sentence, ellipses allowed>
      Key information: the viewpoint/method/data in brief
      Practical value: where it applies or what to do with it
   2. ...
   ...
   10. ...

Requirements:
- if information is insufficient, integrate what the summaries contain; do not fabricate;
- if fewer than 10 TOP tweets can be listed, list what exists and explain why at the end;
- do not use markdown formatting, the report is delivered as plain-text email.

Here are the chunk summaries; produce the template above from them:
%s`, joined.String())

	return []domain.Message{{Role: "user", Content: strings.TrimSpace(prompt)}}
}
