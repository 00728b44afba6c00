package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRecallTopK           = 3
	DefaultRecallFallbackWindow = 10
)

// Retriever finds the stored memories most relevant to a new message.
// Retrieval is best-effort: store failures yield an empty result.
type Retriever struct {
	store          domain.MemoryStore
	clock          domain.Clock
	logger         *zap.Logger
	fallbackWindow int
}

func NewRetriever(ms domain.MemoryStore, clock domain.Clock, fallbackWindow int, logger *zap.Logger) *Retriever {
	if fallbackWindow <= 0 {
		fallbackWindow = DefaultRecallFallbackWindow
	}
	return &Retriever{store: ms, clock: clock, logger: logger, fallbackWindow: fallbackWindow}
}

// Retrieve returns up to k memories: exact topic matches first, and only if
// there are none, recent memories whose summary or topics contain a query word.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, k int) []domain.Memory {
	if k <= 0 {
		k = DefaultRecallTopK
	}
	words := queryWords(query)
	if userID == "" || len(words) == 0 {
		return nil
	}

	exact, err := r.store.FindByTopicsAny(ctx, userID, words, k)
	if err != nil {
		r.logger.Warn("topic recall failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if len(exact) > 0 {
		return exact
	}

	recent, err := r.store.FindRecent(ctx, userID, r.fallbackWindow)
	if err != nil {
		r.logger.Warn("fallback recall failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	var matched []domain.Memory
	for _, m := range recent {
		if mentionsAny(m, words) {
			matched = append(matched, m)
			if len(matched) == k {
				break
			}
		}
	}
	return matched
}

// Reinforce refreshes every retrieved memory whose summary appears in the reply.
// It returns the IDs that were refreshed.
func (r *Retriever) Reinforce(ctx context.Context, userID string, retrieved []domain.Memory, reply string) []uuid.UUID {
	lowerReply := strings.ToLower(reply)
	now := r.clock.Now()

	var refreshed []uuid.UUID
	for _, m := range retrieved {
		summary := strings.ToLower(strings.TrimSpace(m.Summary))
		if summary == "" || !strings.Contains(lowerReply, summary) {
			continue
		}
		if err := r.store.Touch(ctx, userID, m.ID, now); err != nil {
			r.logger.Warn("failed to refresh referenced memory",
				zap.String("user_id", userID),
				zap.String("memory_id", m.ID.String()),
				zap.Error(err))
			continue
		}
		refreshed = append(refreshed, m.ID)
	}
	return refreshed
}

// BuildContext renders memories as plain text, one paragraph per memory, for
// injection into a completion prompt.
func BuildContext(memories []domain.Memory) string {
	paragraphs := make([]string, 0, len(memories))
	for _, m := range memories {
		paragraphs = append(paragraphs, fmt.Sprintf("[%s] %s\nTopics: %s\nImportance: %.2f",
			m.Class, m.Summary, strings.Join(m.Topics, ", "), m.ImportanceScore))
	}
	return strings.Join(paragraphs, "\n\n")
}

func mentionsAny(m domain.Memory, words []string) bool {
	summary := strings.ToLower(m.Summary)
	for _, w := range words {
		if strings.Contains(summary, w) {
			return true
		}
		for _, t := range m.Topics {
			if strings.Contains(t, w) {
				return true
			}
		}
	}
	return false
}

// queryWords is the de-duplicated token set of a query.
func queryWords(query string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range tokenize(query) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

// tokenize lowercases text, splits it on whitespace and trims punctuation from
// both ends of each word.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
