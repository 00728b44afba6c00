package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "STORE_DRIVER", "SWEEP_SCHEDULE", "SUMMARIZE_TIMEOUT", "CAPTURE_TRIGGERS", "PURGE_AFTER_DAYS", "RECALL_TOP_K"} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "postgres", StoreDriver())
	assert.Equal(t, "@every 336h", SweepSchedule())
	assert.Equal(t, 10*time.Second, SummarizeTimeout())
	assert.Nil(t, CaptureTriggers())
	assert.Equal(t, 0, PurgeAfterDays())
	assert.Equal(t, 3, RecallTopK())
}

func TestOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SUMMARIZE_TIMEOUT", "2s")
	t.Setenv("CAPTURE_TRIGGERS", "remember, my goal ,, deadline")
	t.Setenv("PURGE_AFTER_DAYS", "90")
	t.Setenv("SWEEP_WORKERS", "-3")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, "sqlite", StoreDriver())
	assert.Equal(t, 2*time.Second, SummarizeTimeout())
	assert.Equal(t, []string{"remember", "my goal", "deadline"}, CaptureTriggers())
	assert.Equal(t, 90, PurgeAfterDays())
	assert.Equal(t, 4, SweepWorkers(), "invalid values fall back to the default")
}

func TestLLMAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	t.Setenv("LLM_PROVIDER", "anthropic")
	assert.Equal(t, "sk-ant", LLMAPIKey())

	t.Setenv("LLM_PROVIDER", "")
	assert.Equal(t, "sk-openai", LLMAPIKey())

	t.Setenv("LLM_PROVIDER", "mock")
	assert.Empty(t, LLMAPIKey())
}
