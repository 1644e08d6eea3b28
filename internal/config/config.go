package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Inference Service
	InferenceEndpoint       string
	InferenceToken          string
	InferenceTimeout        time.Duration
	InferenceMaxRetries     int
	InferenceRetryBaseDelay time.Duration
	InferenceRetryMaxDelay  time.Duration
	InferenceBaseInputsFile string

	// Dialogue policy
	EmergencyDepartment string
	EmergencyHotline    string
	BookingWindowDays   int
	ClinicTimezone      string

	// Session registry
	SessionTTL           time.Duration
	EndedSessionTTL      time.Duration
	SessionSweepInterval time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Appointment ledgers
	LedgerS3Bucket    string
	LedgerS3Key       string
	DatabaseURL       string
	LedgerDynamoTable string

	// Email
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	BookingEventsQueueURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	TranscriptTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		InferenceEndpoint:       getEnv("INFERENCE_ENDPOINT", ""),
		InferenceToken:          getEnv("INFERENCE_TOKEN", ""),
		InferenceTimeout:        getEnvAsDuration("INFERENCE_TIMEOUT", 120*time.Second),
		InferenceMaxRetries:     getEnvAsInt("INFERENCE_MAX_RETRIES", 3),
		InferenceRetryBaseDelay: getEnvAsDuration("INFERENCE_RETRY_BASE_DELAY", 500*time.Millisecond),
		InferenceRetryMaxDelay:  getEnvAsDuration("INFERENCE_RETRY_MAX_DELAY", 8*time.Second),
		InferenceBaseInputsFile: getEnv("INFERENCE_BASE_INPUTS_FILE", ""),

		EmergencyDepartment: getEnv("EMERGENCY_DEPARTMENT", "Critical Care / Emergency Medicine"),
		EmergencyHotline:    getEnv("EMERGENCY_HOTLINE", "108"),
		BookingWindowDays:   getEnvAsInt("BOOKING_WINDOW_DAYS", 30),
		ClinicTimezone:      getEnv("CLINIC_TIMEZONE", "Asia/Kolkata"),

		SessionTTL:           getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		EndedSessionTTL:      getEnvAsDuration("ENDED_SESSION_TTL", 15*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LedgerS3Bucket:    getEnv("LEDGER_S3_BUCKET", ""),
		LedgerS3Key:       getEnv("LEDGER_S3_KEY", "appointments/appointments_saved_bookings.csv"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		LedgerDynamoTable: getEnv("LEDGER_DYNAMO_TABLE", ""),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Healthcare Team"),

		BookingEventsQueueURL: getEnv("BOOKING_EVENTS_QUEUE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		TranscriptTTL: getEnvAsDuration("TRANSCRIPT_TTL", 24*time.Hour),
	}
}

// Location resolves ClinicTimezone, falling back to UTC for unknown zones.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string) []string {
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
