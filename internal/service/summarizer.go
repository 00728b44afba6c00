package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/llm"
	"go.uber.org/zap"
)

const (
	DefaultSummarizeTimeout = 10 * time.Second

	fallbackBaseImportance  = 0.5
	fallbackTopicImportance = 0.1
	fallbackMaxImportance   = 0.9
	fallbackMinTopicLength  = 4
)

var fallbackStopWords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"for": true, "are": true, "was": true, "were": true,
}

// Summarizer turns a raw message into a memory candidate. The remote completion
// is tried first; any failure degrades to a deterministic local summary.
type Summarizer struct {
	client  domain.CompletionClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewSummarizer(client domain.CompletionClient, timeout time.Duration, logger *zap.Logger) *Summarizer {
	if timeout <= 0 {
		timeout = DefaultSummarizeTimeout
	}
	return &Summarizer{client: client, timeout: timeout, logger: logger}
}

// Summarize never fails: on any error it returns the local fallback candidate.
func (s *Summarizer) Summarize(ctx context.Context, text string) (cand domain.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("summarizer panicked, using fallback", zap.Any("panic", r))
			cand = FallbackSummary(text)
		}
	}()

	if s.client == nil {
		return FallbackSummary(text)
	}

	remote, err := s.summarizeRemote(ctx, text)
	if err != nil {
		s.logger.Warn("remote summarization failed, using fallback", zap.Error(err))
		return FallbackSummary(text)
	}
	return remote
}

func (s *Summarizer) summarizeRemote(ctx context.Context, text string) (domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Complete(ctx, fmt.Sprintf(llm.SummarizePrompt, text))
	if err != nil {
		return domain.Candidate{}, err
	}
	return ParseCandidate(raw)
}

// ParseCandidate decodes a remote summary, tolerating markdown fences and prose
// around the JSON object. Anything structurally off is ErrMalformedSummary.
func ParseCandidate(raw string) (domain.Candidate, error) {
	payload := stripFences(raw)
	if start, end := strings.Index(payload, "{"), strings.LastIndex(payload, "}"); start >= 0 && end > start {
		payload = payload[start : end+1]
	}

	var parsed struct {
		Summary    string   `json:"summary"`
		Topics     []string `json:"topics"`
		Importance *float64 `json:"importance"`
		Class      string   `json:"class"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return domain.Candidate{}, fmt.Errorf("%w: %v", domain.ErrMalformedSummary, err)
	}

	summary := domain.TruncateSummary(parsed.Summary)
	if summary == "" {
		return domain.Candidate{}, fmt.Errorf("%w: empty summary", domain.ErrMalformedSummary)
	}
	topics := domain.NormalizeTopics(parsed.Topics)
	if len(topics) == 0 {
		return domain.Candidate{}, fmt.Errorf("%w: no topics", domain.ErrMalformedSummary)
	}
	if len(topics) > domain.MaxTopics {
		topics = topics[:domain.MaxTopics]
	}
	if parsed.Importance == nil || math.IsNaN(*parsed.Importance) || *parsed.Importance < 0 || *parsed.Importance > 1 {
		return domain.Candidate{}, fmt.Errorf("%w: importance missing or outside [0,1]", domain.ErrMalformedSummary)
	}

	cand := domain.Candidate{
		Summary:         summary,
		Topics:          topics,
		ImportanceScore: *parsed.Importance,
	}
	if domain.ValidMemoryClass(parsed.Class) {
		cand.Class = domain.MemoryClass(parsed.Class)
	}
	return cand, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FallbackSummary is the deterministic local summarizer.
func FallbackSummary(text string) domain.Candidate {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	seen := make(map[string]bool)
	topics := []string{}
	for _, w := range tokenize(text) {
		if utf8.RuneCountInString(w) < fallbackMinTopicLength || fallbackStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		topics = append(topics, w)
	}

	importance := math.Min(fallbackBaseImportance+fallbackTopicImportance*float64(len(topics)), fallbackMaxImportance)

	return domain.Candidate{
		Summary:         domain.TruncateSummary(text),
		Topics:          topics,
		ImportanceScore: importance,
		Class:           classifyLocal(text),
	}
}
