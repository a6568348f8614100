package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type" toml:"type" validate:"omitempty,oneof=tfidf openai"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// StoreConfig points at the bbolt chunk database.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port" validate:"gte=0,lte=65535"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Collection string `yaml:"collection" toml:"collection"`
	UseTLS     bool   `yaml:"use_tls" toml:"use_tls"`
}

// IndexConfig selects the nearest-neighbor index and where its files live.
type IndexConfig struct {
	Type      string        `yaml:"type" toml:"type" validate:"omitempty,oneof=flat qdrant"`
	Path      string        `yaml:"path" toml:"path"`
	IDMapPath string        `yaml:"id_map_path" toml:"id_map_path" validate:"required"`
	Qdrant    *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// RetrievalConfig carries the ranking weights and abstention thresholds.
type RetrievalConfig struct {
	Alpha             float64 `yaml:"alpha" toml:"alpha" validate:"gte=0,lte=1"`
	Oversample        int     `yaml:"oversample" toml:"oversample" validate:"gte=1"`
	BaselineThreshold float64 `yaml:"baseline_threshold" toml:"baseline_threshold"`
	HybridThreshold   float64 `yaml:"hybrid_threshold" toml:"hybrid_threshold"`
	MaxAnswerChars    int     `yaml:"max_answer_chars" toml:"max_answer_chars" validate:"gte=1"`
	DefaultK          int     `yaml:"default_k" toml:"default_k" validate:"gte=1"`
	DefaultMode       string  `yaml:"default_mode" toml:"default_mode" validate:"oneof=baseline hybrid"`
}

// IngestConfig configures PDF ingestion and chunking.
type IngestConfig struct {
	ArchivePath  string `yaml:"archive_path" toml:"archive_path"`
	SourcesPath  string `yaml:"sources_path" toml:"sources_path"`
	ChunkSize    int    `yaml:"chunk_size" toml:"chunk_size" validate:"gte=1"`
	ChunkOverlap int    `yaml:"chunk_overlap" toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// ServerConfig configures the HTTP query service.
type ServerConfig struct {
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig configures the arbor logger.
type LoggingConfig struct {
	Level    string   `yaml:"level" toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Output   []string `yaml:"output" toml:"output" validate:"dive,oneof=stdout console file"`
	FilePath string   `yaml:"file_path" toml:"file_path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder" toml:"embedder"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" toml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest" toml:"ingest"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/safetyqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/safetyqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints and cross-section requirements.
func Validate(cfg *AppConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Index.Type == "flat" && cfg.Index.Path == "" {
		return fmt.Errorf("%w: index.path is required for the flat index", ErrInvalidConfig)
	}
	if cfg.Index.Type == "qdrant" && (cfg.Index.Qdrant == nil || cfg.Index.Qdrant.Collection == "") {
		return fmt.Errorf("%w: index.qdrant.collection is required for the qdrant index", ErrInvalidConfig)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "safetyqa", "config.yaml"), nil
}

// Default returns a fresh copy of the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{Type: "tfidf"},
		Store:    StoreConfig{Path: "chunks.db"},
		Index:    IndexConfig{Type: "flat", Path: "index.db", IDMapPath: "id_map.json"},
		Retrieval: RetrievalConfig{
			Alpha:             0.7,
			Oversample:        5,
			BaselineThreshold: 0.15,
			HybridThreshold:   0.25,
			MaxAnswerChars:    800,
			DefaultK:          3,
			DefaultMode:       "hybrid",
		},
		Ingest: IngestConfig{
			ArchivePath:  filepath.Join("data", "industrial-safety-pdfs.zip"),
			SourcesPath:  filepath.Join("data", "sources.json"),
			ChunkSize:    800,
			ChunkOverlap: 100,
		},
		Server:  ServerConfig{Port: 8000, AllowedOrigins: []string{"http://localhost:3000"}},
		Logging: LoggingConfig{Level: "info", Output: []string{"stdout"}},
	}
}

// applyConfigDefaults fills fields a partial file left at their zero value.
// Alpha and the thresholds are kept as written, since zero is a meaningful setting for them.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Retrieval.Oversample == 0 {
		cfg.Retrieval.Oversample = 5
	}
	if cfg.Retrieval.MaxAnswerChars == 0 {
		cfg.Retrieval.MaxAnswerChars = 800
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Retrieval.DefaultMode == "" {
		cfg.Retrieval.DefaultMode = "hybrid"
	}
	cfg.Retrieval.DefaultMode = strings.ToLower(cfg.Retrieval.DefaultMode)
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 800
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.Logging.Output) == 0 {
		cfg.Logging.Output = []string{"stdout"}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.Host == "" {
			cfg.Index.Qdrant.Host = "localhost"
		}
		if cfg.Index.Qdrant.Port == 0 {
			cfg.Index.Qdrant.Port = 6334
		}
	}
}
