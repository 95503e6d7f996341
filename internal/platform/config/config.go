package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	Environment        string
	CORSAllowedOrigins []string
	EmailFrom          string
	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPUseTLS         bool
	HRNotificationMail string
	RunMigrations      bool
	RunSeed            bool
	MaxBodyBytes       int64
	MetricsEnabled     bool
	RateLimitPerMinute int

	LeaveAccrualInterval       time.Duration
	LeaveEscalationInterval    time.Duration
	LeaveEscalationSLA         time.Duration
	LeaveYearEndInterval       time.Duration
	LeavePatternInterval       time.Duration
	LeaveTeamConflictThreshold float64
	LeaveEncashmentCapDays     float64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment values win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load failed", "err", err)
	}

	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		Environment:        getEnv("APP_ENV", "development"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		EmailFrom:          getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:       getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:         getEnvBool("SMTP_USE_TLS", true),
		HRNotificationMail: getEnv("HR_NOTIFICATION_EMAIL", ""),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:            getEnvBool("RUN_SEED", true),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		LeaveAccrualInterval:       getEnvDuration("LEAVE_ACCRUAL_INTERVAL", 24*time.Hour),
		LeaveEscalationInterval:    getEnvDuration("LEAVE_ESCALATION_INTERVAL", 6*time.Hour),
		LeaveEscalationSLA:         getEnvDuration("LEAVE_ESCALATION_SLA", 48*time.Hour),
		LeaveYearEndInterval:       getEnvDuration("LEAVE_YEAR_END_INTERVAL", 24*time.Hour),
		LeavePatternInterval:       getEnvDuration("LEAVE_PATTERN_INTERVAL", 0),
		LeaveTeamConflictThreshold: getEnvFloat("LEAVE_TEAM_CONFLICT_THRESHOLD", 0.3),
		LeaveEncashmentCapDays:     getEnvFloat("LEAVE_ENCASHMENT_CAP_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (c Config) Validate() error {
	if c.Environment == "production" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	if c.Environment == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.LeaveTeamConflictThreshold <= 0 || c.LeaveTeamConflictThreshold > 1 {
		return fmt.Errorf("LEAVE_TEAM_CONFLICT_THRESHOLD must be in (0, 1]")
	}
	if c.LeaveEncashmentCapDays < 0 {
		return fmt.Errorf("LEAVE_ENCASHMENT_CAP_DAYS must not be negative")
	}
	if c.LeaveEscalationSLA <= 0 {
		return fmt.Errorf("LEAVE_ESCALATION_SLA must be positive")
	}
	return nil
}
