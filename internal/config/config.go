package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deplacements/internal/valuation"
)

// Recap backends.
const (
	RecapBackendMemory = "memory"
	RecapBackendSheets = "sheets"
)

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration

	// Database
	SQLiteDBPath string

	// AMQP (empty URL disables the queue; recaps are then generated inline)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recap output
	RecapBackend        string
	GoogleSpreadsheetID string
	RecapSheetName      string

	// Valuation
	RecapWorkers      int
	DefaultRulePolicy string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/deplacements.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "deplacements"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "monthly_recaps"),

		RecapBackend:        getEnv("RECAP_BACKEND", RecapBackendMemory),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		RecapSheetName:      getEnv("RECAP_SHEET_NAME", "Recap"),

		RecapWorkers:      getEnvInt("RECAP_WORKERS", 4),
		DefaultRulePolicy: getEnv("DEFAULT_RULE_POLICY", string(valuation.FirstSupplied)),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	} else if c.RequestTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at most 10 minutes", c.RequestTimeout))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.RecapBackend {
	case RecapBackendMemory:
	case RecapBackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets recap backend")
		}
		if strings.TrimSpace(c.RecapSheetName) == "" {
			errors = append(errors, "recap sheet name is required when using sheets recap backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid recap backend '%s': must be one of [%s %s]", c.RecapBackend, RecapBackendMemory, RecapBackendSheets))
	}

	if c.RecapWorkers < 1 || c.RecapWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid recap workers %d: must be between 1 and 64", c.RecapWorkers))
	}

	if _, err := valuation.ParseDefaultRulePolicy(c.DefaultRulePolicy); err != nil {
		errors = append(errors, err.Error())
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AggregatorConfig maps the valuation settings. Call after Validate.
func (c *Config) AggregatorConfig() valuation.AggregatorConfig {
	cfg := valuation.DefaultAggregatorConfig()
	if policy, err := valuation.ParseDefaultRulePolicy(c.DefaultRulePolicy); err == nil {
		cfg.RulePolicy = policy
	}
	if c.RecapWorkers > 0 {
		cfg.RecapWorkers = c.RecapWorkers
	}
	return cfg
}

// QueueEnabled reports whether recap requests go through AMQP.
func (c *Config) QueueEnabled() bool {
	return c.AMQPURL != ""
}

// ParseLogLevel accepts debug, info, warn and error (case-insensitive).
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
