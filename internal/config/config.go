package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	VectorStoreQdrant   = "qdrant"
	VectorStoreChromem  = "chromem"
	VectorStorePGVector = "pgvector"

	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	RAG         RAGConfig         `yaml:"rag"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	BodyLimit int    `yaml:"body_limit_mb"`
}

// LLMConfig describes an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Dimension   int     `yaml:"dimension"`
	BatchSize   int     `yaml:"batch_size"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type VectorStoreConfig struct {
	Type        string `yaml:"type"`
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Path        string `yaml:"path"`
	Compress    bool   `yaml:"compress"`
	DSN         string `yaml:"dsn"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type RAGConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	DefaultChunks  int `yaml:"default_chunks"`
	MaxChunksLimit int `yaml:"max_chunks_limit"`
	PreviewChars   int `yaml:"preview_chars"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LoadConfig reads the yaml file at path (a missing file yields defaults),
// then applies environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config populated only with defaults and environment overrides.
func Default() *Config {
	var cfg Config
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.EmbedLLM.Key = v
		cfg.ChatLLM.Key = v
	}
	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		cfg.EmbedLLM.BaseURL = v
		cfg.ChatLLM.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbedLLM.Model = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.ChatLLM.Model = v
	}
	if v := os.Getenv("VECTOR_STORE"); v != "" {
		cfg.VectorStore.Type = strings.ToLower(v)
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.VectorStore.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.APIKey = v
	}
	if v := os.Getenv("PGVECTOR_DSN"); v != "" {
		cfg.VectorStore.DSN = v
	}
	if v := os.Getenv("METADATA_DB_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("METADATA_DB_DSN"); v != "" {
		cfg.Ledger.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8008
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.BodyLimit == 0 {
		cfg.Server.BodyLimit = 50
	}

	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nvidia/nv-embedqa-e5-v5"
	}
	if cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = 1024
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 50
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "meta/llama-3.3-70b-instruct"
	}
	if cfg.ChatLLM.Temperature == 0 {
		cfg.ChatLLM.Temperature = 0.3
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = VectorStoreQdrant
	}
	if cfg.VectorStore.URL == "" {
		cfg.VectorStore.URL = "http://localhost:6333"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "pdf_documents"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./chromemdb"
	}

	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = LedgerSQLite
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./documents_meta.db"
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.DefaultChunks == 0 {
		cfg.RAG.DefaultChunks = 3
	}
	if cfg.RAG.MaxChunksLimit == 0 {
		cfg.RAG.MaxChunksLimit = 20
	}
	if cfg.RAG.PreviewChars == 0 {
		cfg.RAG.PreviewChars = 200
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.EmbedLLM.BaseURL == "" {
		errs = append(errs, errors.New("embed_llm.base_url is required (OPENAI_API_BASE)"))
	}
	if c.ChatLLM.BaseURL == "" {
		errs = append(errs, errors.New("chat_llm.base_url is required (OPENAI_API_BASE)"))
	}
	if c.EmbedLLM.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embed_llm.dimension must be positive: %d", c.EmbedLLM.Dimension))
	}
	if c.ChatLLM.Temperature < 0 || c.ChatLLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat_llm.temperature must be between 0 and 2: %v", c.ChatLLM.Temperature))
	}
	switch c.VectorStore.Type {
	case VectorStoreQdrant, VectorStoreChromem:
	case VectorStorePGVector:
		if c.VectorStore.DSN == "" {
			errs = append(errs, errors.New("vector_store.dsn is required for pgvector (PGVECTOR_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported vector_store.type: %q", c.VectorStore.Type))
	}
	switch c.Ledger.Driver {
	case LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.DSN == "" {
			errs = append(errs, errors.New("ledger.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported ledger.driver: %q", c.Ledger.Driver))
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive: %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size): %d", c.RAG.ChunkOverlap))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
