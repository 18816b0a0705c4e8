package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/storefrontlabs/adminflow/internal/catalog"
	"github.com/storefrontlabs/adminflow/internal/engine"
	"github.com/storefrontlabs/adminflow/internal/execute"
	"github.com/storefrontlabs/adminflow/internal/guardrail"
	"github.com/storefrontlabs/adminflow/internal/logging"
	"github.com/storefrontlabs/adminflow/internal/nlp"
	"github.com/storefrontlabs/adminflow/internal/panel"
	"github.com/storefrontlabs/adminflow/internal/policy"
	"github.com/storefrontlabs/adminflow/internal/scheduler"
	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/internal/validate"
	"github.com/storefrontlabs/adminflow/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "adminflow:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.Seed {
		if err := seedDemoData(ctx, st); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded demo catalog")
	}

	// Domain and pipeline stages. Operator rule sets compile here so a bad
	// expression fails at startup, not mid-command.
	svc := catalog.NewService(st)
	var rules *guardrail.RuleSet
	if len(cfg.GuardRules) > 0 {
		rules, err = guardrail.NewRuleSet(cfg.GuardRules)
		if err != nil {
			return fmt.Errorf("guard rules: %w", err)
		}
	}
	var overrides *policy.OverrideSet
	if len(cfg.PolicyOverrides) > 0 {
		overrides, err = policy.NewOverrideSet(cfg.PolicyOverrides)
		if err != nil {
			return fmt.Errorf("policy overrides: %w", err)
		}
	}
	validator := validate.NewStage(svc, rules, validate.Config{
		OutlierThreshold: orDefault(cfg.OutlierThreshold, engine.DefaultOutlierThreshold),
	}, logger)
	dispatcher, err := execute.NewDispatcher(svc, logger)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	extractor := newExtractor(cfg, logger)
	responder := nlp.NewTemplateResponder()

	orch := engine.NewOrchestrator(st, extractor, responder, validator, dispatcher, engine.Config{
		OutlierThreshold:    cfg.OutlierThreshold,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		HighRiskIntents:     cfg.HighRiskIntents,
		ConfirmationTTL:     duration(cfg.ConfirmationTTL),
		ExecutionTimeout:    duration(cfg.ExecutionTimeout),
		Overrides:           overrides,
	}, logger)

	// Background housekeeping.
	sched, err := scheduler.NewScheduler(st, orch, scheduler.Config{
		VacuumSchedule: cfg.VacuumSchedule,
	}, logger)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// Surfaces: MCP stdio takes over the process when enabled; the panel
	// runs as an HTTP server otherwise (or alongside from another process).
	if cfg.MCP {
		srv := mcp.NewAdminServer(mcp.AdminServerDeps{
			Orchestrator: orch,
			Store:        st,
			Logger:       logger,
		})
		logger.Info("serving MCP over stdio")
		return srv.Serve(ctx)
	}

	if !cfg.Panel {
		return fmt.Errorf("nothing to serve: enable the panel or MCP")
	}
	srv := panel.NewServer(cfg.ListenAddr, panel.Deps{
		Store:        st,
		Orchestrator: orch,
		Logger:       logger,
	})
	return srv.Start(ctx)
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.DBPath == "" || cfg.DBPath == ":memory:" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.NewLibSQLStore("file:" + cfg.DBPath)
}

func newExtractor(cfg Config, logger *slog.Logger) nlp.Extractor {
	if cfg.OpenAIAPIKey == "" {
		logger.Info("no OpenAI API key configured, using pattern extractor")
		return nlp.NewPatternExtractor()
	}
	return nlp.NewOpenAIExtractor(nlp.AdapterConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
}

func orDefault(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
