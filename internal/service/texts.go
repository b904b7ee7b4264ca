package service

import (
	"strings"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/filter"
)

// CorpusTexts builds the text list handed to the classifier: post title and
// body joined, comment bodies as is. Links are replaced by the placeholder,
// whitespace is collapsed and case-insensitive duplicates are dropped while
// keeping first-seen order.
func CorpusTexts(records []domain.CorpusRecord) []string {
	out := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		var text string
		switch {
		case r.Type == domain.RecordTypePost && r.Post != nil:
			text = strings.TrimSpace(r.Post.Title + "\n" + r.Post.Body)
		case r.Type == domain.RecordTypeComment && r.Comment != nil:
			text = r.Comment.Body
		default:
			continue
		}

		text = strings.Join(strings.Fields(filter.SubstituteLinks(text)), " ")
		if text == "" || text == filter.LinkPlaceholder {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
	}
	return out
}
