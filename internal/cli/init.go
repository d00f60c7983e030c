// Package cli provides common CLI initialization utilities shared by
// cmd/insights, cmd/insights-worker and cmd/sheets-auth.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finsight/internal/amqp"
	"finsight/internal/backend"
	"finsight/internal/config"
	"finsight/internal/log"
	"finsight/internal/services"
)

// SetupLogger builds the process logger at the given level and installs it
// as the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// EngineConfig maps the INSIGHT_* settings onto the generation pass.
func EngineConfig(cfg *config.Config) services.EngineConfig {
	return services.EngineConfig{
		WindowDays:   cfg.InsightWindowDays,
		DedupWindow:  cfg.InsightDedupWindow,
		RetentionCap: cfg.InsightRetentionCap,
		ListCap:      cfg.InsightListCap,
	}
}

// RuleConfig returns the rule thresholds, overlaid with INSIGHT_RULES_FILE when set.
func RuleConfig(cfg *config.Config) (services.RuleConfig, error) {
	if cfg.InsightRulesFile == "" {
		return services.DefaultRuleConfig(), nil
	}
	return services.LoadRuleConfigFile(cfg.InsightRulesFile)
}

// Engine is the assembled insight engine of one process.
type Engine struct {
	Backend   *backend.Result
	Insights  *services.InsightService
	ReadState *services.ReadStateService
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.Backend.Close()
}

// BuildEngine opens the configured backend and wires the services over it.
func BuildEngine(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Engine, error) {
	engineCfg := EngineConfig(cfg)
	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	rules, err := RuleConfig(cfg)
	if err != nil {
		return nil, err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	metrics := services.GlobalMetrics()
	evaluator := services.NewRuleEvaluator(rules, logger, metrics)
	return &Engine{
		Backend: res,
		Insights: services.NewInsightService(res.Ledger, res.Insights, evaluator, engineCfg,
			services.WithLogger(logger),
			services.WithMetrics(metrics)),
		ReadState: services.NewReadStateService(res.Insights, engineCfg.ListCap),
	}, nil
}

// ConnectAMQP dials the broker when AMQP_URL is set. A nil client means
// messaging is disabled or unreachable; the caller decides whether that is fatal.
func ConnectAMQP(cfg *config.Config, logger *log.Logger) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without broker", log.FieldError, err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}
