package rag

import (
	"unicode/utf8"

	"github.com/replymate/replymate/internal/genai"
)

// Assemble packs retrieval results into a context bundle no larger than
// budget characters of excerpt text. Documents are included greedily in
// result order (highest score first; the retriever already broke score ties
// by recency). The last included excerpt is truncated rather than dropped
// when the full body would overflow the budget, so a document is never split
// into non-adjacent fragments. An empty result yields an empty bundle.
func Assemble(results []ScoredDocument, budget int) Bundle {
	var bundle Bundle
	if budget <= 0 || len(results) == 0 {
		return bundle
	}
	bundle.TopScore = results[0].Score

	remaining := budget
	for _, result := range results {
		if remaining <= 0 {
			break
		}
		text := truncate(result.Document.Body, remaining)
		if text == "" {
			break
		}
		bundle.Excerpts = append(bundle.Excerpts, genai.ContextExcerpt{
			Title:    result.Document.Title,
			Category: result.Document.Category,
			Text:     text,
		})
		bundle.DocumentIDs = append(bundle.DocumentIDs, result.Document.ID)
		bundle.TotalSize += len(text)
		remaining -= len(text)
	}
	return bundle
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
