package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken   string `yaml:"slack_bot_token"`
	TriageChannelID string `yaml:"triage_channel_id"`

	TrackerURL      string            `yaml:"tracker_url"`
	TrackerToken    string            `yaml:"tracker_token"`
	TrackerTeamIDs  map[string]string `yaml:"tracker_team_ids"`
	TrackerLabelIDs []string          `yaml:"tracker_label_ids"`

	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	LLMTimeoutSeconds int    `yaml:"llm_timeout_seconds"`

	PolicyVersion      string `yaml:"policy_version"`
	DBPath             string `yaml:"db_path"`
	SweepSchedule      string `yaml:"sweep_schedule"`
	SweepLookbackHours int    `yaml:"sweep_lookback_hours"`
	MessageDelayMS     int    `yaml:"message_delay_ms"`

	// Verbose gates diagnostic log lines. Explicit field, threaded through
	// calls; there is no package-level logging flag.
	Verbose bool `yaml:"verbose"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.TriageChannelID, "TRIAGE_CHANNEL_ID")
	envOverride(&cfg.TrackerURL, "TRACKER_URL")
	envOverride(&cfg.TrackerToken, "TRACKER_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	envOverride(&cfg.PolicyVersion, "POLICY_VERSION")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverrideInt(&cfg.SweepLookbackHours, "SWEEP_LOOKBACK_HOURS")
	envOverrideInt(&cfg.MessageDelayMS, "MESSAGE_DELAY_MS")
	envOverrideBool(&cfg.Verbose, "VERBOSE")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 60
	}
	if cfg.PolicyVersion == "" {
		cfg.PolicyVersion = string(PolicyV1)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./triagebot.db"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "*/15 * * * *"
	}
	if cfg.SweepLookbackHours == 0 {
		cfg.SweepLookbackHours = 24
	}
	if cfg.MessageDelayMS == 0 {
		cfg.MessageDelayMS = 1200
	}

	switch cfg.LLMProvider {
	case "anthropic", "openai":
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}
	if !PolicyVersion(cfg.PolicyVersion).Valid() {
		log.Fatalf("policy_version must be 'v1' or 'v2', got '%s'", cfg.PolicyVersion)
	}
	if cfg.LLMTimeoutSeconds < 1 {
		log.Fatalf("invalid llm_timeout_seconds '%d': must be >= 1", cfg.LLMTimeoutSeconds)
	}
	if cfg.SweepLookbackHours < 1 {
		log.Fatalf("invalid sweep_lookback_hours '%d': must be >= 1", cfg.SweepLookbackHours)
	}
	if cfg.MessageDelayMS < 0 {
		log.Fatalf("invalid message_delay_ms '%d': must be >= 0", cfg.MessageDelayMS)
	}
	for key := range cfg.TrackerTeamIDs {
		if !Team(key).Valid() {
			log.Fatalf("invalid tracker_team_ids key '%s': not a known team", key)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// Per-command requirement checks. LoadConfig validates value shapes only;
// which credentials are mandatory depends on the subcommand.

func (c Config) RequireSlack() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("slack_bot_token is not set (via config.yaml or SLACK_BOT_TOKEN)")
	}
	if c.TriageChannelID == "" {
		return fmt.Errorf("triage_channel_id is not set (via config.yaml or TRIAGE_CHANNEL_ID)")
	}
	return nil
}

func (c Config) RequireTracker() error {
	if c.TrackerURL == "" || c.TrackerToken == "" {
		return fmt.Errorf("tracker_url and tracker_token are required (via config.yaml or TRACKER_URL / TRACKER_TOKEN)")
	}
	return nil
}

func (c Config) RequireLLM() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

func (c Config) Policy() PolicyVersion { return PolicyVersion(c.PolicyVersion) }

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// MessageDelay is the fixed pause between consecutive external calls when
// iterating a batch.
func (c Config) MessageDelay() time.Duration {
	return time.Duration(c.MessageDelayMS) * time.Millisecond
}

func (c Config) vlogf(format string, args ...any) {
	if c.Verbose {
		log.Printf(format, args...)
	}
}
