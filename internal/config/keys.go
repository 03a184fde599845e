package config

import (
	"fmt"
	"os"
	"strconv"
)

// serviceName identifies this app in the platform secret store.
const serviceName = "malunita"

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MALUNITA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "MALUNITA_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "inference.provider", typ: kString, env: "MALUNITA_INFERENCE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Inference.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Provider },
	},
	{
		key: "inference.base_url", typ: kString, env: "MALUNITA_INFERENCE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Inference.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.BaseURL },
	},
	{
		key: "inference.model", typ: kString, env: "MALUNITA_INFERENCE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Model },
	},
	{
		key: "inference.timeout_seconds", typ: kInt, env: "MALUNITA_INFERENCE_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Inference.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Inference.TimeoutSeconds },
	},
	{
		key: "inference.cloud_api_key", typ: kString, env: "MALUNITA_CLOUD_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Inference.CloudAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.CloudAPIKey },
	},
	{
		key: "inference.cloud_model", typ: kString, env: "MALUNITA_INFERENCE_CLOUD_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.CloudModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.CloudModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MALUNITA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "MALUNITA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "pipeline.max_questions", typ: kInt, env: "MALUNITA_PIPELINE_MAX_QUESTIONS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxQuestions = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxQuestions },
	},
	{
		key: "pipeline.confidence_threshold", typ: kFloat, env: "MALUNITA_PIPELINE_CONFIDENCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ConfidenceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.ConfidenceThreshold },
	},
	{
		key: "pipeline.relevance_threshold", typ: kFloat, env: "MALUNITA_PIPELINE_RELEVANCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RelevanceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.RelevanceThreshold },
	},
	{
		key: "pipeline.max_capture_runes", typ: kInt, env: "MALUNITA_PIPELINE_MAX_CAPTURE_RUNES",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxCaptureRunes = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxCaptureRunes },
	},
	{
		key: "learning.min_signals", typ: kInt, env: "MALUNITA_LEARNING_MIN_SIGNALS",
		apply:   func(cfg *Config, v any) { cfg.Learning.MinSignals = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.MinSignals },
	},
	{
		key: "learning.half_life_days", typ: kFloat, env: "MALUNITA_LEARNING_HALF_LIFE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Learning.HalfLifeDays = v.(float64) },
		extract: func(cfg Config) any { return cfg.Learning.HalfLifeDays },
	},
	{
		key: "learning.window_days", typ: kInt, env: "MALUNITA_LEARNING_WINDOW_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Learning.WindowDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.WindowDays },
	},
	{
		key: "learning.interval_minutes", typ: kInt, env: "MALUNITA_LEARNING_INTERVAL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Learning.IntervalMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.IntervalMinutes },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
