package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// VerifyToken guards the lifecycle webhook.
	VerifyToken string

	CountryCode       string
	TrunkPrefix       string
	MinPhoneDigits    int
	MessagingScheme   string
	WebFallbackHost   string
	PreferWebFallback bool

	SystemListName string

	// warnings collected while loading; NewLogger reports them.
	warnings []string
}

func LoadConfig() *Config {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, fmt.Sprintf("no .env file loaded: %v", err))
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./quickping.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "quickping"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		VerifyToken: getEnv("VERIFY_TOKEN", ""),

		CountryCode:       getEnv("COUNTRY_CODE", "972"),
		TrunkPrefix:       getEnv("TRUNK_PREFIX", "0"),
		MinPhoneDigits:    getEnvInt("MIN_PHONE_DIGITS", 7, &warnings),
		MessagingScheme:   getEnv("MESSAGING_SCHEME", "whatsapp"),
		WebFallbackHost:   getEnv("WEB_FALLBACK_HOST", "wa.me"),
		PreferWebFallback: getEnvBool("PREFER_WEB_FALLBACK", false, &warnings),

		SystemListName: getEnv("SYSTEM_LIST_NAME", "Unassigned"),
	}
	cfg.warnings = warnings
	return cfg
}

// Warnings lists the problems found while loading, such as unparsable values
// that fell back to their defaults.
func (c *Config) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// IsProduction selects the production logger and quieter gorm logging.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int, warnings *[]string) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("invalid %s=%q, using %d", key, value, fallback))
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool, warnings *[]string) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("invalid %s=%q, using %t", key, value, fallback))
		return fallback
	}
	return b
}
