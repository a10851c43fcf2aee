package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"inquiry_server/core/domain"
)

// RuleBasedMode controls learned-vs-rule-based backend selection.
type RuleBasedMode string

const (
	RuleBasedForce RuleBasedMode = "force" // rule-based backends only
	RuleBasedAuto  RuleBasedMode = "auto"  // learned with permanent fallback on failure
	RuleBasedOff   RuleBasedMode = "off"   // learned only, failures surface to callers
)

// ParseRuleBasedMode parses the tri-state flag, defaulting to auto.
func ParseRuleBasedMode(s string) RuleBasedMode {
	switch RuleBasedMode(strings.ToLower(s)) {
	case RuleBasedForce:
		return RuleBasedForce
	case RuleBasedOff:
		return RuleBasedOff
	default:
		return RuleBasedAuto
	}
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// Classifier backends
	UseRuleBased           RuleBasedMode
	LearnedMemoryThreshold int64 // bytes; auto-mode probe threshold
	OpenAIAPIKey           string
	LLMModel               string
	LLMTimeout             time.Duration

	// Drain loop
	BatchLimitRuleBased   int // 0 = unbounded
	BatchLimitLearned     int
	DrainBatchSize        int
	DrainWorkerCount      int
	PerInquiryTimeout     time.Duration
	DrainSoftDeadline     time.Duration
	MaxProcessingAttempts int
	ClaimTTL              time.Duration

	// Routing
	RoutingRulesPath   string
	AssignmentStrategy domain.AssignmentStrategy
	SLA                map[domain.Urgency]time.Duration

	// Prediction cache
	CacheTTL time.Duration

	// Scheduler
	SchedulerEnabled bool
	DrainSchedule    string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Classifier backends
		UseRuleBased:           ParseRuleBasedMode(getEnv("USE_RULE_BASED", "auto")),
		LearnedMemoryThreshold: getEnvInt64("LEARNED_MEMORY_THRESHOLD_BYTES", 16<<30),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		LLMModel:               getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:             time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 60)) * time.Second,

		// Drain loop
		BatchLimitRuleBased:   getEnvInt("BATCH_LIMIT_RULE_BASED", 0),
		BatchLimitLearned:     getEnvInt("BATCH_LIMIT_LEARNED", 50),
		DrainBatchSize:        getEnvInt("DRAIN_BATCH_SIZE", 50),
		DrainWorkerCount:      getEnvInt("DRAIN_WORKER_COUNT", 4),
		PerInquiryTimeout:     time.Duration(getEnvInt("PER_INQUIRY_TIMEOUT_SEC", 30)) * time.Second,
		DrainSoftDeadline:     time.Duration(getEnvInt("DRAIN_SOFT_DEADLINE_SEC", 3300)) * time.Second,
		MaxProcessingAttempts: getEnvInt("MAX_PROCESSING_ATTEMPTS", 5),
		ClaimTTL:              time.Duration(getEnvInt("CLAIM_TTL_SEC", 600)) * time.Second,

		// Routing
		RoutingRulesPath:   getEnv("ROUTING_RULES_PATH", ""),
		AssignmentStrategy: domain.ParseAssignmentStrategy(getEnv("ASSIGNMENT_STRATEGY", "round_robin")),
		SLA: map[domain.Urgency]time.Duration{
			domain.UrgencyCritical: time.Duration(getEnvInt("SLA_CRITICAL_SEC", 3600)) * time.Second,
			domain.UrgencyHigh:     time.Duration(getEnvInt("SLA_HIGH_SEC", 4*3600)) * time.Second,
			domain.UrgencyMedium:   time.Duration(getEnvInt("SLA_MEDIUM_SEC", 24*3600)) * time.Second,
			domain.UrgencyLow:      time.Duration(getEnvInt("SLA_LOW_SEC", 72*3600)) * time.Second,
		},

		// Prediction cache
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_MIN", 60)) * time.Minute,

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		DrainSchedule:    getEnv("DRAIN_SCHEDULE", "@hourly"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
