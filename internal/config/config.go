package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Storage   StorageConfig
	Log       LogConfig
	Pipeline  PipelineConfig
	Learning  LearningConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// InferenceConfig selects and configures the model backend. Provider is
// "local" (an Ollama-compatible server) or "cloud" (an OpenAI-compatible
// endpoint, which requires CloudAPIKey).
type InferenceConfig struct {
	Provider       string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	CloudAPIKey    string
	CloudModel     string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// PipelineConfig carries the policy constants of the capture pipeline.
// They are part of the observable contract and must stay configurable.
type PipelineConfig struct {
	MaxQuestions        int
	ConfidenceThreshold float64
	RelevanceThreshold  float64
	MaxCaptureRunes     int
}

// LearningConfig carries the policy constants of signal aggregation.
type LearningConfig struct {
	MinSignals      int
	HalfLifeDays    float64
	WindowDays      int
	IntervalMinutes int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4500,
			MCPPort: 4501,
		},
		Inference: InferenceConfig{
			Provider:       "local",
			BaseURL:        "http://localhost:11434",
			Model:          "phi3.5",
			TimeoutSeconds: 10,
			CloudModel:     "anthropic/claude-opus-4",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Pipeline: PipelineConfig{
			MaxQuestions:        3,
			ConfidenceThreshold: 0.75,
			RelevanceThreshold:  0.7,
			MaxCaptureRunes:     4000,
		},
		Learning: LearningConfig{
			MinSignals:      3,
			HalfLifeDays:    30,
			WindowDays:      30,
			IntervalMinutes: 60,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.malunita.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/malunita/config.json
// and secrets live in a mode-0600 secrets file under the data dir.
//
// Environment variables (MALUNITA_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The cloud key only matters when the cloud provider is selected.
	if cfg.Inference.Provider == "cloud" && cfg.Inference.CloudAPIKey == "" {
		if key, err := kc.Get(serviceName, "cloud_api_key"); err == nil && key != "" {
			cfg.Inference.CloudAPIKey = key
		}
	}
	if cfg.Inference.Provider == "cloud" && cfg.Inference.CloudAPIKey == "" {
		return Config{}, fmt.Errorf(
			"missing required config: cloud API key. "+
				"Set it via environment variable MALUNITA_CLOUD_API_KEY%s", apiKeyHint())
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Inference.Provider {
	case "local", "cloud":
	default:
		return fmt.Errorf("invalid inference.provider %q: must be local or cloud", cfg.Inference.Provider)
	}
	if cfg.Pipeline.MaxQuestions < 0 {
		return fmt.Errorf("pipeline.max_questions must not be negative")
	}
	if cfg.Pipeline.ConfidenceThreshold <= 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in (0, 1]")
	}
	if cfg.Pipeline.RelevanceThreshold <= 0 || cfg.Pipeline.RelevanceThreshold > 1 {
		return fmt.Errorf("pipeline.relevance_threshold must be in (0, 1]")
	}
	if cfg.Learning.MinSignals < 1 {
		return fmt.Errorf("learning.min_signals must be at least 1")
	}
	if cfg.Learning.HalfLifeDays <= 0 {
		return fmt.Errorf("learning.half_life_days must be positive")
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
