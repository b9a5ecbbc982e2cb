// Package knowledge matches reference documents to anomaly signals.
package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

// MaxDocuments caps how many documents feed one investigation.
const MaxDocuments = 5

// Match scores. A category equal to the signal type dominates; each
// matching keyword adds one point.
const (
	scoreCategoryMatch = 3
	scoreTypeMention   = 2
	scoreKeywordMatch  = 1
)

// Score rates a document against a signal type and keywords, case
// insensitively. Zero means unrelated.
func Score(doc domain.KnowledgeDocument, signalType string, keywords []string) int {
	st := strings.ToLower(strings.TrimSpace(signalType))
	body := strings.ToLower(doc.Title + "\n" + doc.Content + "\n" + strings.Join(doc.Keywords, " "))

	score := 0
	if st != "" {
		if strings.EqualFold(doc.Category, st) {
			score += scoreCategoryMatch
		} else if strings.Contains(body, st) {
			score += scoreTypeMention
		}
	}

	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		if strings.Contains(body, kw) {
			score += scoreKeywordMatch
		}
	}
	return score
}

// Rank returns up to limit related documents, best first. Equal scores keep
// input order.
func Rank(docs []domain.KnowledgeDocument, signalType string, keywords []string, limit int) []domain.KnowledgeDocument {
	if limit <= 0 || limit > MaxDocuments {
		limit = MaxDocuments
	}

	type scored struct {
		doc   domain.KnowledgeDocument
		score int
	}
	var matches []scored
	for _, d := range docs {
		if s := Score(d, signalType, keywords); s > 0 {
			matches = append(matches, scored{doc: d, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]domain.KnowledgeDocument, len(matches))
	for i, m := range matches {
		out[i] = m.doc
	}
	return out
}

// Render concatenates documents into the context text handed to
// investigation steps.
func Render(docs []domain.KnowledgeDocument) string {
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(d.Title)
		if d.Category != "" {
			sb.WriteString(" [")
			sb.WriteString(d.Category)
			sb.WriteString("]")
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(d.Content))
	}
	return sb.String()
}

// Static serves a fixed document set.
type Static []domain.KnowledgeDocument

func (s Static) GetContextForSignal(ctx context.Context, signalType string, keywords []string) (string, error) {
	return Render(Rank(s, signalType, keywords, MaxDocuments)), nil
}
