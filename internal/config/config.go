package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Clinic civil timezone used to evaluate "today" and the same-day
	// booking lead time. All instants are stored in UTC; this only
	// governs the read-side slot filtering.
	ClinicTimezone  string
	SameDayLeadTime time.Duration

	// Block generation bounds.
	MaxGenerationRangeDays int

	// Payment gateway adapter.
	GatewayBaseURL    string
	GatewayAPIKey     string
	GatewayTimeout    time.Duration
	AllowFakeGateway  bool
	AppointmentAmount int

	// Reconciliation of appointments stuck in awaiting_payment.
	ReconcileInterval  time.Duration
	ReconcileThreshold time.Duration

	// Slot cache.
	RedisAddr     string
	RedisPassword string
	SlotCacheTTL  time.Duration

	CORSAllowedOrigins []string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		ClinicTimezone:  getEnv("CLINIC_TIMEZONE", "America/Santiago"),
		SameDayLeadTime: getEnvAsDuration("SAME_DAY_LEAD_TIME", 60*time.Minute),

		MaxGenerationRangeDays: getEnvAsInt("MAX_GENERATION_RANGE_DAYS", 90),

		GatewayBaseURL:    getEnv("PAYMENT_GATEWAY_BASE_URL", ""),
		GatewayAPIKey:     getEnv("PAYMENT_GATEWAY_API_KEY", ""),
		GatewayTimeout:    getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
		AllowFakeGateway:  getEnvAsBool("ALLOW_FAKE_GATEWAY", false),
		AppointmentAmount: getEnvAsInt("APPOINTMENT_AMOUNT_CENTS", 30000),

		ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", 10*time.Minute),
		ReconcileThreshold: getEnvAsDuration("RECONCILE_THRESHOLD", 30*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SlotCacheTTL:  getEnvAsDuration("SLOT_CACHE_TTL", 30*time.Second),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
