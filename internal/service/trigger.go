package service

import (
	"strings"
	"unicode/utf8"

	"github.com/Harshitk-cp/mnemo/internal/domain"
)

// DefaultMinCaptureLength is the trimmed length (in characters) below which a
// message never carries durable information.
const DefaultMinCaptureLength = 10

// DefaultTriggers is the trigger vocabulary used when none is configured.
var DefaultTriggers = []string{
	"remember",
	"don't forget",
	"goal",
	"plan to",
	"planning to",
	"going to",
	"important",
	"created",
	"founded",
	"started",
	"launched",
	"company",
	"business",
	"startup",
	"project",
	"my name is",
	"i work",
	"i live",
	"deadline",
	"always",
	"never",
	"prefer",
	"my wife",
	"my husband",
	"my partner",
	"my friend",
	"my mom",
	"my dad",
	"my son",
	"my daughter",
}

// relationshipMarkers and deepMarkers drive the local class assignment when the
// remote summarizer does not supply one.
var relationshipMarkers = []string{
	"wife", "husband", "partner", "girlfriend", "boyfriend", "friend", "mom", "mother",
	"dad", "father", "son", "daughter", "brother", "sister", "cofounder", "co-founder", "boss", "colleague",
}

var deepMarkers = []string{
	"my name is", "founded", "created", "company", "business", "startup", "goal", "always", "never",
	"i am a", "i'm a", "i work", "i live", "remember",
}

type TriggerClassifier struct {
	minLength int
	triggers  []string
}

// NewTriggerClassifier returns a classifier over the given vocabulary.
// A nil or empty vocabulary falls back to DefaultTriggers.
func NewTriggerClassifier(minLength int, triggers []string) *TriggerClassifier {
	if minLength <= 0 {
		minLength = DefaultMinCaptureLength
	}
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	lowered := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &TriggerClassifier{minLength: minLength, triggers: lowered}
}

// ShouldCapture reports whether text is a memory-worthy event.
func (c *TriggerClassifier) ShouldCapture(text string) bool {
	return c.Check(text) == nil
}

// Check is ShouldCapture with the rejection reason.
func (c *TriggerClassifier) Check(text string) error {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < c.minLength {
		return domain.ErrInputTooShort
	}
	lower := strings.ToLower(trimmed)
	for _, t := range c.triggers {
		if strings.Contains(lower, t) {
			return nil
		}
	}
	return ErrNoTrigger
}

// classifyLocal assigns a class from the message text alone.
func classifyLocal(text string) domain.MemoryClass {
	lower := strings.ToLower(text)
	for _, w := range tokenize(lower) {
		for _, m := range relationshipMarkers {
			if w == m {
				return domain.MemoryClassRelationship
			}
		}
	}
	for _, m := range deepMarkers {
		if strings.Contains(lower, m) {
			return domain.MemoryClassDeep
		}
	}
	return domain.MemoryClassShort
}
