package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	ListCacheTTL       time.Duration

	LogLevel string

	// Storage
	DataBackend  string // sqlite | memory
	LedgerSource string // store | sheets
	SQLiteDBPath string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleBudgetsSheet      string

	// Insight engine
	InsightWindowDays   int
	InsightDedupWindow  time.Duration
	InsightRetentionCap int
	InsightListCap      int
	InsightRulesFile    string

	// Worker
	DispatchMaxConcurrent int
	SweepInterval         time.Duration // zero disables the sweep
}

var (
	validBackends      = []string{"sqlite", "memory"}
	validLedgerSources = []string{"store", "sheets"}
	validLogLevels     = []string{"debug", "info", "warn", "warning", "error"}
)

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ListCacheTTL:       getEnvDuration("LIST_CACHE_TTL", 5*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		LedgerSource: getEnv("LEDGER_SOURCE", "store"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finsight.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finsight"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_changed"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTransactionsSheet: getEnv("GOOGLE_TRANSACTIONS_SHEET", "Transactions"),
		GoogleBudgetsSheet:      getEnv("GOOGLE_BUDGETS_SHEET", "Budgets"),

		InsightWindowDays:   getEnvInt("INSIGHT_WINDOW_DAYS", 30),
		InsightDedupWindow:  getEnvDuration("INSIGHT_DEDUP_WINDOW", 24*time.Hour),
		InsightRetentionCap: getEnvInt("INSIGHT_RETENTION_CAP", 5),
		InsightListCap:      getEnvInt("INSIGHT_LIST_CAP", 6),
		InsightRulesFile:    getEnv("INSIGHT_RULES_FILE", ""),

		DispatchMaxConcurrent: getEnvInt("DISPATCH_MAX_CONCURRENT", 4),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", time.Hour),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	if !slices.Contains(validLedgerSources, c.LedgerSource) {
		errors = append(errors, fmt.Sprintf("invalid ledger source '%s': must be one of %v", c.LedgerSource, validLedgerSources))
	}
	if c.LedgerSource == "sheets" && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when the ledger source is sheets")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
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

	if c.InsightWindowDays < 1 || c.InsightWindowDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid insight window %d days: must be between 1 and 366", c.InsightWindowDays))
	}
	if c.InsightDedupWindow < 0 {
		errors = append(errors, fmt.Sprintf("invalid insight dedup window %v: must not be negative", c.InsightDedupWindow))
	}
	if c.InsightRetentionCap < 1 {
		errors = append(errors, fmt.Sprintf("invalid insight retention cap %d: must be at least 1", c.InsightRetentionCap))
	}
	if c.InsightListCap < 1 {
		errors = append(errors, fmt.Sprintf("invalid insight list cap %d: must be at least 1", c.InsightListCap))
	}
	if c.InsightRulesFile != "" {
		if _, err := os.Stat(c.InsightRulesFile); err != nil {
			errors = append(errors, fmt.Sprintf("insight rules file %s: %v", c.InsightRulesFile, err))
		}
	}

	if c.DispatchMaxConcurrent < 1 {
		errors = append(errors, fmt.Sprintf("invalid dispatch concurrency %d: must be at least 1", c.DispatchMaxConcurrent))
	}
	if c.SweepInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must not be negative", c.SweepInterval))
	} else if c.SweepInterval > 0 && c.SweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 minute", c.SweepInterval))
	}
	if c.ListCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid list cache TTL %v: must not be negative", c.ListCacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
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
