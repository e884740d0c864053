package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds application configuration.
// Scalar values come from baseDir/config.json layered over defaults;
// the API key is only ever read from the environment.
type Config struct {
	// Bind is the HTTP listen address for the API server.
	Bind string `json:"bind"`
	Port int    `json:"port"`

	// LLMBaseURL is the root of an OpenAI-compatible API
	// (e.g. http://localhost:11434/v1 for a local runtime).
	LLMBaseURL string `json:"llm_base_url"`

	// LLMModel is used for gate/classify/agent chat calls.
	LLMModel string `json:"llm_model"`

	// LLMEmbedModel is used for embedding calls.
	LLMEmbedModel string `json:"llm_embed_model"`

	// LLMAPIKey is loaded from the STACKNOTE_API_KEY environment variable,
	// never from config.json.
	LLMAPIKey string `json:"-"`

	// FetchTimeoutSecs bounds one page fetch during extraction.
	FetchTimeoutSecs int `json:"fetch_timeout_secs"`

	// ModelTimeoutSecs bounds one LLM or embedding call.
	ModelTimeoutSecs int `json:"model_timeout_secs"`

	// QueueSize is the intake queue capacity. Submissions beyond this
	// are rejected at the intake boundary.
	QueueSize int `json:"queue_size"`

	// AgentMaxIterations caps LLM/tool round trips in one agent run.
	AgentMaxIterations int `json:"agent_max_iterations"`

	// BriefingHour is the local hour (0-23) for the daily briefing job.
	BriefingHour int `json:"briefing_hour"`

	// BriefingDays is the window the scheduled briefing covers.
	BriefingDays int `json:"briefing_days"`

	// DBMaxOpenConns limits open database connections. 0 means the
	// sql.DB default. Set to 1 to serialize all access.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections. 0 means default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bind:               "127.0.0.1",
		Port:               8502,
		LLMBaseURL:         "https://api.openai.com/v1",
		LLMModel:           "gpt-4o-mini",
		LLMEmbedModel:      "text-embedding-3-small",
		FetchTimeoutSecs:   10,
		ModelTimeoutSecs:   60,
		QueueSize:          256,
		AgentMaxIterations: 8,
		BriefingHour:       8,
		BriefingDays:       7,
	}
}

// Load loads configuration from baseDir/config.json layered over defaults.
// A missing file is not an error. The baseDir parameter allows tests to
// use t.TempDir() instead of the real data directory.
func Load(baseDir string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.LLMAPIKey = os.Getenv("STACKNOTE_API_KEY")
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.LLMAPIKey = os.Getenv("STACKNOTE_API_KEY")
	return cfg, nil
}

// DefaultBaseDir returns ~/.stacknote, the default data directory.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stacknote"), nil
}
