package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by MNEMO_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MNEMO_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intOr("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver returns the persistence backend: postgres or sqlite.
// Defaults to "postgres" if not set.
func StoreDriver() string {
	return stringOr("STORE_DRIVER", "postgres")
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func SQLitePath() string {
	return stringOr("SQLITE_PATH", "mnemo.db")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// LLMProvider returns the configured completion provider.
// Valid values: openai, anthropic, cerebras, gemini, mock
func LLMProvider() string {
	return stringOr("LLM_PROVIDER", "openai")
}

// LLMModel overrides the provider's default model when set.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// SummarizeTimeout bounds the remote summarization call before the local fallback is used.
func SummarizeTimeout() time.Duration {
	return durationOr("SUMMARIZE_TIMEOUT", 10*time.Second)
}

// CaptureTimeout bounds a whole background capture (summarize + store).
func CaptureTimeout() time.Duration {
	return durationOr("CAPTURE_TIMEOUT", 30*time.Second)
}

func CaptureMinLength() int {
	return intOr("CAPTURE_MIN_LENGTH", 10)
}

// CaptureTriggers returns the trigger vocabulary override, or nil to keep the defaults.
func CaptureTriggers() []string {
	return listOf("CAPTURE_TRIGGERS")
}

func RecallTopK() int {
	return intOr("RECALL_TOP_K", 3)
}

func RecallFallbackWindow() int {
	return intOr("RECALL_FALLBACK_WINDOW", 10)
}

// SweepSchedule is a robfig/cron spec. Defaults to every 14 days.
func SweepSchedule() string {
	return stringOr("SWEEP_SCHEDULE", "@every 336h")
}

func SweepWorkers() int {
	return intOr("SWEEP_WORKERS", 4)
}

func SweepTimeout() time.Duration {
	return durationOr("SWEEP_TIMEOUT", 30*time.Minute)
}

func ShortRetentionDays() int {
	return intOr("SHORT_RETENTION_DAYS", 30)
}

func RelationshipRetentionDays() int {
	return intOr("RELATIONSHIP_RETENTION_DAYS", 45)
}

func RelationshipMinReferences() int {
	return intOr("RELATIONSHIP_MIN_REFERENCES", 3)
}

// PurgeAfterDays is the grace period before soft-deleted records are erased.
// Zero disables purging.
func PurgeAfterDays() int {
	n, err := strconv.Atoi(os.Getenv("PURGE_AFTER_DAYS"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// APIToken is an optional shared bearer token required on /v1 routes.
func APIToken() string {
	return os.Getenv("API_TOKEN")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intOr("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

func stringOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func intOr(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func listOf(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
