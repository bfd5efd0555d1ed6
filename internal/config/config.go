package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	OpenAI  OpenAIConfig
	Mongo   MongoConfig
	Agent   AgentConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken, when set, enables bearer auth on the query API.
	APIToken string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// SupportsReasoning states whether the configured model accepts
	// reasoning-effort and verbosity parameters. Decided here once,
	// never inferred from the model name at call time.
	SupportsReasoning bool
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type AgentConfig struct {
	MaxAttempts     int
	MaxResults      int
	ReasoningEffort string
	Verbosity       string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		OpenAI: OpenAIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-5",
			SupportsReasoning: true,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "government_procurement",
			Collection: "purchase_orders",
		},
		Agent: AgentConfig{
			MaxAttempts:     3,
			MaxResults:      100,
			ReasoningEffort: "medium",
			Verbosity:       "medium",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askdb"
	}
	return filepath.Join(home, ".askdb")
}

// Load reads configuration from defaults overridden by ASKDB_* environment
// variables. The OpenAI API key is the only required value.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable ASKDB_OPENAI_API_KEY")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envString("ASKDB_SERVER_PORT", nil, func(v string) {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var ASKDB_SERVER_PORT=%q: %v. Using default value.\n", v, err)
		}
	})
	envString("ASKDB_API_TOKEN", &cfg.Server.APIToken, nil)
	envString("ASKDB_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL, nil)
	envString("ASKDB_OPENAI_API_KEY", &cfg.OpenAI.APIKey, nil)
	envString("ASKDB_OPENAI_MODEL", &cfg.OpenAI.Model, nil)
	envString("ASKDB_OPENAI_SUPPORTS_REASONING", nil, func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OpenAI.SupportsReasoning = b
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var ASKDB_OPENAI_SUPPORTS_REASONING=%q: %v. Using default value.\n", v, err)
		}
	})
	envString("ASKDB_MONGO_URI", &cfg.Mongo.URI, nil)
	envString("ASKDB_MONGO_DATABASE", &cfg.Mongo.Database, nil)
	envString("ASKDB_MONGO_COLLECTION", &cfg.Mongo.Collection, nil)
	envString("ASKDB_AGENT_MAX_ATTEMPTS", nil, func(v string) {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Agent.MaxAttempts = i
		}
	})
	envString("ASKDB_AGENT_MAX_RESULTS", nil, func(v string) {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Agent.MaxResults = i
		}
	})
	envString("ASKDB_AGENT_REASONING_EFFORT", &cfg.Agent.ReasoningEffort, nil)
	envString("ASKDB_AGENT_VERBOSITY", &cfg.Agent.Verbosity, nil)
	envString("ASKDB_STORAGE_DATA_DIR", &cfg.Storage.DataDir, nil)
	envString("ASKDB_LOG_LEVEL", &cfg.Log.Level, nil)
}

// envString reads the named variable and, if non-empty, either assigns it to
// dst or hands it to parse when a conversion is needed.
func envString(name string, dst *string, parse func(string)) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	if parse != nil {
		parse(raw)
		return
	}
	*dst = raw
}
