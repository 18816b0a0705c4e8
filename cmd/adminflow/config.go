package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/storefrontlabs/adminflow/internal/guardrail"
	"github.com/storefrontlabs/adminflow/internal/policy"
)

// Config holds all adminflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	MCP        bool   `json:"mcp"`
	Panel      bool   `json:"panel"`
	Seed       bool   `json:"seed"`

	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIModel   string `json:"openai_model"`
	OpenAIBaseURL string `json:"openai_base_url"`

	OutlierThreshold    float64  `json:"outlier_threshold"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	HighRiskIntents     []string `json:"high_risk_intents"`
	ConfirmationTTL     string   `json:"confirmation_ttl"`
	ExecutionTimeout    string   `json:"execution_timeout"`
	VacuumSchedule      string   `json:"vacuum_schedule"`

	// GuardRules are operator expr rules evaluated during validation.
	GuardRules []guardrail.Rule `json:"guard_rules"`
	// PolicyOverrides are operator CEL predicates that can escalate a
	// command to confirmation.
	PolicyOverrides []policy.Override `json:"policy_overrides"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:  ":4200",
		DBPath:      filepath.Join(adminflowDir(), "adminflow.db"),
		LogLevel:    "info",
		Panel:       true,
		OpenAIModel: "gpt-4o-mini",
	}
}

func adminflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".adminflow"
	}
	return filepath.Join(home, ".adminflow")
}

func settingsPath() string {
	return filepath.Join(adminflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("ADMINFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ADMINFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ADMINFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ADMINFLOW_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}
	if v := os.Getenv("ADMINFLOW_PANEL"); v != "" {
		cfg.Panel = v == "true" || v == "1"
	}
	if v := os.Getenv("ADMINFLOW_SEED"); v != "" {
		cfg.Seed = v == "true" || v == "1"
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("ADMINFLOW_OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("ADMINFLOW_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("ADMINFLOW_OUTLIER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OutlierThreshold = f
		}
	}
	if v := os.Getenv("ADMINFLOW_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("ADMINFLOW_HIGH_RISK_INTENTS"); v != "" {
		cfg.HighRiskIntents = splitNonEmpty(v)
	}
	if v := os.Getenv("ADMINFLOW_CONFIRMATION_TTL"); v != "" {
		cfg.ConfirmationTTL = v
	}
	if v := os.Getenv("ADMINFLOW_EXECUTION_TIMEOUT"); v != "" {
		cfg.ExecutionTimeout = v
	}
	if v := os.Getenv("ADMINFLOW_VACUUM_SCHEDULE"); v != "" {
		cfg.VacuumSchedule = v
	}
	// Structured values come in as JSON arrays.
	if v := os.Getenv("ADMINFLOW_GUARD_RULES"); v != "" {
		var rules []guardrail.Rule
		if err := json.Unmarshal([]byte(v), &rules); err == nil {
			cfg.GuardRules = rules
		}
	}
	if v := os.Getenv("ADMINFLOW_POLICY_OVERRIDES"); v != "" {
		var overrides []policy.Override
		if err := json.Unmarshal([]byte(v), &overrides); err == nil {
			cfg.PolicyOverrides = overrides
		}
	}

	return cfg
}

// duration parses a duration config value, returning zero (meaning "use
// the default") on empty or malformed input.
func duration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func splitNonEmpty(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
