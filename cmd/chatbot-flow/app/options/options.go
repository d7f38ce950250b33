// Package options contains flags and options for initializing the
// chatbot-flow server.
package options

import (
	"fmt"
	"os"
	"time"

	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/wbt-web-support/chatbot-flow/internal/flow"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
)

// LLMProviderOptions configures one LLM provider.
type LLMProviderOptions struct {
	// Provider is the registered provider name (gemini, openai).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL overrides the provider's API base address.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey is the provider API key.
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model is the model name.
	Model string `json:"model" mapstructure:"model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry count for transient failures.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// AddFlags adds the provider flags with the given prefix.
func (o *LLMProviderOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&o.Provider, prefix+"provider", o.Provider, "LLM provider name")
	fs.StringVar(&o.BaseURL, prefix+"base-url", o.BaseURL, "Provider API base URL")
	fs.StringVar(&o.APIKey, prefix+"api-key", o.APIKey, "Provider API key")
	fs.StringVar(&o.Model, prefix+"model", o.Model, "Model name")
	fs.DurationVar(&o.Timeout, prefix+"timeout", o.Timeout, "Provider request timeout")
	fs.IntVar(&o.MaxRetries, prefix+"max-retries", o.MaxRetries, "Provider retry count")
}

// ToConfigMap converts the options into a provider factory config map.
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.Model,
		"chat_model":  o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// RedisOptions configures the embedding cache backend.
type RedisOptions struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// AddFlags adds the redis flags.
func (o *RedisOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "redis.enabled", o.Enabled, "Enable the redis embedding cache")
	fs.StringVar(&o.Addr, "redis.addr", o.Addr, "Redis address")
	fs.StringVar(&o.Password, "redis.password", o.Password, "Redis password")
	fs.IntVar(&o.DB, "redis.db", o.DB, "Redis database number")
}

// MilvusOptions configures the optional ANN vector index.
type MilvusOptions struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Address    string        `json:"address" mapstructure:"address"`
	Username   string        `json:"username" mapstructure:"username"`
	Password   string        `json:"password" mapstructure:"password"`
	Database   string        `json:"database" mapstructure:"database"`
	Collection string        `json:"collection" mapstructure:"collection"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// AddFlags adds the milvus flags.
func (o *MilvusOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "milvus.enabled", o.Enabled, "Use milvus for vector search instead of the in-process index")
	fs.StringVar(&o.Address, "milvus.address", o.Address, "Milvus server address")
	fs.StringVar(&o.Username, "milvus.username", o.Username, "Milvus username")
	fs.StringVar(&o.Password, "milvus.password", o.Password, "Milvus password")
	fs.StringVar(&o.Database, "milvus.database", o.Database, "Milvus database name")
	fs.StringVar(&o.Collection, "milvus.collection", o.Collection, "Milvus collection name")
	fs.DurationVar(&o.Timeout, "milvus.timeout", o.Timeout, "Milvus connect timeout")
}

// ServerOptions contains all chatbot-flow server options.
type ServerOptions struct {
	HTTPAddr  string `json:"http-addr" mapstructure:"http-addr"`
	JWTSecret string `json:"jwt-secret" mapstructure:"jwt-secret"`

	Log *option.LogOption `json:"log" mapstructure:"log"`

	PostgresDSN string `json:"postgres-dsn" mapstructure:"postgres-dsn"`

	Redis  *RedisOptions  `json:"redis" mapstructure:"redis"`
	Milvus *MilvusOptions `json:"milvus" mapstructure:"milvus"`

	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`
	Chat      *LLMProviderOptions `json:"chat" mapstructure:"chat"`

	PromptBudget    int           `json:"prompt-budget" mapstructure:"prompt-budget"`
	PoolSize        int           `json:"pool-size" mapstructure:"pool-size"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPAddr:    ":8090",
		Log:         option.DefaultLogOption(),
		PostgresDSN: "host=localhost user=postgres dbname=chatbot_flow port=5432 sslmode=disable",
		Redis: &RedisOptions{
			Addr: "localhost:6379",
		},
		Milvus: &MilvusOptions{
			Address:    "localhost:19530",
			Collection: "flow_instructions",
			Timeout:    10 * time.Second,
		},
		Embedding: &LLMProviderOptions{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		Chat: &LLMProviderOptions{
			Provider:   "gemini",
			Model:      "gemini-2.5-flash",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
		},
		PromptBudget:    biz.DefaultPromptBudget,
		PoolSize:        32,
		ShutdownTimeout: 30 * time.Second,
	}
}

// AddFlags registers every option on the flag set.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.HTTPAddr, "http-addr", o.HTTPAddr, "HTTP listen address")
	fs.StringVar(&o.JWTSecret, "jwt-secret", o.JWTSecret, "HMAC secret for verifying identity tokens")
	fs.StringVar(&o.PostgresDSN, "postgres-dsn", o.PostgresDSN, "Postgres connection string")
	fs.IntVar(&o.PromptBudget, "prompt-budget", o.PromptBudget, "Assembled prompt character budget")
	fs.IntVar(&o.PoolSize, "pool-size", o.PoolSize, "Worker pool size for data-access fetches")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	o.Log.AddFlags(fs)
	o.Redis.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding.")
	o.Chat.AddFlags(fs, "chat.")
}

// Complete fills in values left unset, pulling provider keys from the
// conventional environment variables.
func (o *ServerOptions) Complete() error {
	if o.Embedding.APIKey == "" {
		o.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.Chat.APIKey == "" {
		o.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return nil
}

// Validate checks the options for inconsistencies.
func (o *ServerOptions) Validate() error {
	if o.HTTPAddr == "" {
		return fmt.Errorf("http-addr is required")
	}
	if o.JWTSecret == "" {
		return fmt.Errorf("jwt-secret is required")
	}
	if o.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn is required")
	}
	if o.Embedding.Provider == "" || o.Chat.Provider == "" {
		return fmt.Errorf("embedding and chat providers are required")
	}
	if o.Milvus.Enabled && o.Milvus.Address == "" {
		return fmt.Errorf("milvus.address is required when milvus is enabled")
	}
	return nil
}

// Config builds the runtime configuration from the options.
func (o *ServerOptions) Config() (*flow.Config, error) {
	cfg := &flow.Config{
		HTTPAddr:    o.HTTPAddr,
		JWTSecret:   o.JWTSecret,
		LogOption:   o.Log,
		PostgresDSN: o.PostgresDSN,
		Redis: &flow.RedisConfig{
			Enabled:  o.Redis.Enabled,
			Addr:     o.Redis.Addr,
			Password: o.Redis.Password,
			DB:       o.Redis.DB,
		},
		Embedding: flow.ProviderConfig{
			Provider: o.Embedding.Provider,
			Config:   o.Embedding.ToConfigMap(),
		},
		Chat: flow.ProviderConfig{
			Provider: o.Chat.Provider,
			Config:   o.Chat.ToConfigMap(),
		},
		PromptBudget:    o.PromptBudget,
		PoolSize:        o.PoolSize,
		ShutdownTimeout: o.ShutdownTimeout,
	}

	if o.Milvus.Enabled {
		cfg.Milvus = &store.MilvusConfig{
			Address:    o.Milvus.Address,
			Username:   o.Milvus.Username,
			Password:   o.Milvus.Password,
			Database:   o.Milvus.Database,
			Collection: o.Milvus.Collection,
			Dimension:  biz.EmbeddingDimension,
			Timeout:    o.Milvus.Timeout,
		}
	}
	return cfg, nil
}
