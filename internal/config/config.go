// Package config handles Ferris Wheel configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit -config path is given.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ferris-wheel", "config.yaml"))
	}

	paths = append(paths, "/etc/ferris-wheel/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Ferris Wheel configuration.
type Config struct {
	Listen        ListenConfig            `yaml:"listen"`
	Models        ModelsConfig            `yaml:"models"`
	OpenAI        OpenAIConfig            `yaml:"openai"`
	Embeddings    EmbeddingsConfig        `yaml:"embeddings"`
	VectorStore   VectorStoreConfig       `yaml:"vector_store"`
	DocumentStore DocumentStoreConfig     `yaml:"document_store"`
	Agent         AgentConfig             `yaml:"agent"`
	MQTT          MQTTConfig              `yaml:"mqtt"`
	Pricing       map[string]PricingEntry `yaml:"pricing"` // Per-model token prices; unlisted models cost nothing
	Timezone      string                  `yaml:"timezone"`
	DataDir       string                  `yaml:"data_dir"`
	LogLevel      string                  `yaml:"log_level"`
	LogFormat     string                  `yaml:"log_format"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig selects models per role and maps model names to providers.
type ModelsConfig struct {
	Default      string        `yaml:"default"`
	Recollection string        `yaml:"recollection"` // Rewrites exchanges into memories
	Planner      string        `yaml:"planner"`
	OllamaURL    string        `yaml:"ollama_url"`
	Available    []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // openai, ollama
}

// OpenAIConfig defines settings for OpenAI-compatible chat completion
// endpoints.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether an API key is present.
func (c OpenAIConfig) Configured() bool {
	return c.APIKey != ""
}

// EmbeddingsConfig selects the embedding backend for the vector store.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // ollama (default) or openai
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseurl"` // Defaults to models.ollama_url for ollama
}

// VectorStoreConfig defines where recall collections are kept. An empty
// Path keeps everything in memory.
type VectorStoreConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// DocumentStoreConfig selects the backend for calendar events and
// conversation records.
type DocumentStoreConfig struct {
	Driver   string `yaml:"driver"`   // sqlite (default) or mongo
	Path     string `yaml:"path"`     // SQLite database file
	URI      string `yaml:"uri"`      // MongoDB connection string
	Database string `yaml:"database"` // MongoDB database name
}

// AgentConfig tunes the orchestration loops.
type AgentConfig struct {
	MaxIterations         int           `yaml:"max_iterations"`
	CalendarMaxIterations int           `yaml:"calendar_max_iterations"`
	RecallLimit           int           `yaml:"recall_limit"`
	Planning              bool          `yaml:"planning"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
}

// MQTTConfig enables calendar change notifications. Leaving Broker empty
// disables MQTT entirely.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Configured reports whether a broker URL is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// PricingEntry is a model's price in USD per million tokens.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file, expanding ${VAR} references,
// then applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration suitable for local development against
// Ollama with an in-memory vector store and a SQLite document store.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 3005
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.Models.Default == "" {
		c.Models.Default = "gpt-4o"
	}
	if c.Models.Recollection == "" {
		c.Models.Recollection = "gpt-4o-mini"
	}
	if c.Models.Planner == "" {
		c.Models.Planner = c.Models.Recollection
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "ollama"
	}
	if c.Embeddings.Model == "" && c.Embeddings.Provider == "ollama" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" && c.Embeddings.Provider == "ollama" {
		c.Embeddings.BaseURL = c.Models.OllamaURL
	}
	if c.DocumentStore.Driver == "" {
		c.DocumentStore.Driver = "sqlite"
	}
	if c.DocumentStore.Driver == "sqlite" && c.DocumentStore.Path == "" {
		c.DocumentStore.Path = filepath.Join(c.DataDir, "ferris-wheel.db")
	}
	if c.DocumentStore.Database == "" {
		c.DocumentStore.Database = "cortex"
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 6
	}
	if c.Agent.CalendarMaxIterations <= 0 {
		c.Agent.CalendarMaxIterations = 4
	}
	if c.Agent.RecallLimit <= 0 {
		c.Agent.RecallLimit = 3
	}
	if c.Agent.RequestTimeout <= 0 {
		c.Agent.RequestTimeout = 2 * time.Minute
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ferris-wheel"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ferris-wheel"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q invalid (expected text or json)", c.LogFormat)
	}
	switch c.DocumentStore.Driver {
	case "sqlite":
	case "mongo":
		if c.DocumentStore.URI == "" {
			return fmt.Errorf("document_store.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("document_store.driver %q invalid (expected sqlite or mongo)", c.DocumentStore.Driver)
	}
	switch c.Embeddings.Provider {
	case "ollama":
	case "openai":
		if !c.OpenAI.Configured() {
			return fmt.Errorf("embeddings.provider openai requires openai.api_key")
		}
	default:
		return fmt.Errorf("embeddings.provider %q invalid (expected ollama or openai)", c.Embeddings.Provider)
	}
	for _, m := range c.Models.Available {
		if m.Provider != "ollama" && m.Provider != "openai" {
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
	}
	for model, p := range c.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("pricing for %q must not be negative", model)
		}
	}
	if c.Agent.CalendarMaxIterations > c.Agent.MaxIterations {
		return fmt.Errorf("agent.calendar_max_iterations (%d) must not exceed agent.max_iterations (%d)",
			c.Agent.CalendarMaxIterations, c.Agent.MaxIterations)
	}
	return nil
}
