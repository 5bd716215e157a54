// Package config loads Loom configuration from defaults, a YAML file, and
// LOOM_-prefixed environment variables, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Skills     SkillsConfig     `koanf:"skills"`
	Router     RouterConfig     `koanf:"router"`
	RefStore   RefStoreConfig   `koanf:"refstore"`
	Embedder   EmbedderConfig   `koanf:"embedder"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Validation ValidationConfig `koanf:"validation"`
	MCP        MCPConfig        `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type SkillsConfig struct {
	Root         string        `koanf:"root"`
	BaselinePath string        `koanf:"baseline_path"` // shared instructions file
	WatchEnabled bool          `koanf:"watch_enabled"`
	WatchEvery   time.Duration `koanf:"watch_every"`
}

type RouterConfig struct {
	Limit         int     `koanf:"limit"`
	MinScore      float64 `koanf:"min_score"`
	ExactWeight   float64 `koanf:"exact_weight"`
	TagWeight     float64 `koanf:"tag_weight"`
	PartialWeight float64 `koanf:"partial_weight"`
}

type RefStoreConfig struct {
	Path         string `koanf:"path"` // sqlite database file
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

type EmbedderConfig struct {
	Provider  string        `koanf:"provider"` // ollama
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
}

type QdrantConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Addr       string `koanf:"addr"`
	Collection string `koanf:"collection"`
}

type ValidationConfig struct {
	MaxRetries int `koanf:"max_retries"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Name      string   `koanf:"name"`
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")

	k.Set("skills.root", "./skills")
	k.Set("skills.watch_enabled", false)
	k.Set("skills.watch_every", "2s")

	k.Set("router.limit", 3)
	k.Set("router.min_score", 0.25)
	k.Set("router.exact_weight", 1.0)
	k.Set("router.tag_weight", 0.5)
	k.Set("router.partial_weight", 0.25)

	k.Set("refstore.path", "loom.db")
	k.Set("refstore.chunk_size", 1000)
	k.Set("refstore.chunk_overlap", 100)

	k.Set("embedder.provider", "ollama")
	k.Set("embedder.base_url", "http://localhost:11434")
	k.Set("embedder.model", "nomic-embed-text")
	k.Set("embedder.dimension", 768)
	k.Set("embedder.timeout", "60s")

	k.Set("qdrant.enabled", false)
	k.Set("qdrant.addr", "localhost:6334")
	k.Set("qdrant.collection", "loom_references")

	k.Set("validation.max_retries", 2)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (LOOM_ROUTER_LIMIT -> router.limit)
	if err := k.Load(env.Provider("LOOM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LOOM_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
