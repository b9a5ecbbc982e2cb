package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Load reads the .env file specified by VIGIL_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("VIGIL_ENV")
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

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// OracleProvider returns the configured oracle backend.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func OracleProvider() string {
	return stringOr("ORACLE_PROVIDER", "openai")
}

// OracleAPIKey returns the API key for the configured oracle provider.
func OracleAPIKey() string {
	switch OracleProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock, none. Defaults to "none", which disables
// similarity search over knowledge documents.
func EmbeddingProvider() string {
	return stringOr("EMBEDDING_PROVIDER", "none")
}

func EmbeddingAPIKey() string {
	if EmbeddingProvider() == "openai" {
		return OpenAIAPIKey()
	}
	return ""
}

// APIKey is the bearer token required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatOr("RATE_LIMIT_RPS", 100)
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

// RunStateDir is where investigation checkpoints are kept. Empty keeps them
// in memory.
func RunStateDir() string {
	return os.Getenv("RUN_STATE_DIR")
}

// KnowledgeDir is a directory of YAML knowledge documents. When set it is
// used instead of the database-backed knowledge store.
func KnowledgeDir() string {
	return os.Getenv("KNOWLEDGE_DIR")
}

func OracleMaxAttempts() uint {
	return uint(intOr("ORACLE_MAX_ATTEMPTS", 3))
}

func OracleInitialBackoff() time.Duration {
	return durationOr("ORACLE_INITIAL_BACKOFF", 500*time.Millisecond)
}

func OracleRPS() float64 {
	return floatOr("ORACLE_RPS", 5)
}

func OracleTimeout() time.Duration {
	return durationOr("ORACLE_TIMEOUT", 30*time.Second)
}

func MaxConcurrentInvestigations() int {
	return intOr("MAX_CONCURRENT_INVESTIGATIONS", 8)
}

func InvestigationTimeout() time.Duration {
	return durationOr("INVESTIGATION_TIMEOUT", 2*time.Minute)
}

func MaxEvidenceIterations() int {
	return intOr("MAX_EVIDENCE_ITERATIONS", 2)
}

func DriftWindowSize() int {
	return intOr("DRIFT_WINDOW_SIZE", 50)
}

func DriftMinSamples() int {
	return intOr("DRIFT_MIN_SAMPLES", 20)
}

// EvolutionThreshold is the number of replays required before the policy
// may evolve.
func EvolutionThreshold() int {
	return intOr("EVOLUTION_THRESHOLD", 25)
}

// MemoryRetention caps how many replays strategic memory keeps.
func MemoryRetention() int {
	return intOr("MEMORY_RETENTION", 5000)
}

// ActionWebhookURL receives executed actions. Empty means dry-run.
func ActionWebhookURL() string {
	return os.Getenv("ACTION_WEBHOOK_URL")
}

func stringOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func intOr(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatOr(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationOr(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// NewLogger builds the production zap logger at LOG_LEVEL.
func NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(LogLevel())
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}
