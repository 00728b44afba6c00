package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type MemoryClass string

const (
	MemoryClassDeep         MemoryClass = "deep"
	MemoryClassShort        MemoryClass = "short"
	MemoryClassRelationship MemoryClass = "relationship"
)

func ValidMemoryClass(c string) bool {
	switch MemoryClass(c) {
	case MemoryClassDeep, MemoryClassShort, MemoryClassRelationship:
		return true
	}
	return false
}

const (
	// MaxSummaryLength is the summary bound in characters (runes).
	MaxSummaryLength = 100
	// MaxTopics is the most topic tags a remote summary may carry.
	MaxTopics = 5

	ellipsis = "..."
)

type Memory struct {
	ID                   uuid.UUID   `json:"id"`
	UserID               string      `json:"user_id"`
	Class                MemoryClass `json:"class"`
	Summary              string      `json:"summary"`
	Topics               []string    `json:"topics"`
	ImportanceScore      float64     `json:"importance_score"`
	OriginConversationID string      `json:"origin_conversation_id,omitempty"`
	OriginMessageID      string      `json:"origin_message_id,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	LastReferencedAt     time.Time   `json:"last_referenced_at"`
	ReferenceCount       int         `json:"reference_count"`
	Deleted              bool        `json:"deleted"`
	DeletedAt            *time.Time  `json:"deleted_at,omitempty"`
}

// Candidate is a summarized message that has not been stored yet.
type Candidate struct {
	Summary         string      `json:"summary"`
	Topics          []string    `json:"topics"`
	ImportanceScore float64     `json:"importance"`
	Class           MemoryClass `json:"class,omitempty"`
}

// Message is a single incoming chat utterance as handed over by the caller.
type Message struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
}

// TruncateSummary bounds s to MaxSummaryLength runes, marking the cut with an ellipsis.
func TruncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxSummaryLength {
		return s
	}
	runes := []rune(s)
	cut := MaxSummaryLength - utf8.RuneCountInString(ellipsis)
	return strings.TrimRightFunc(string(runes[:cut]), isSpace) + ellipsis
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// NormalizeTopics lowercases and de-duplicates tags, keeping first-seen order.
// Multi-word tags are split so every tag is a single word.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, tag := range topics {
		for _, t := range strings.Fields(strings.ToLower(tag)) {
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
