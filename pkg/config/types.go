package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent reel configuration stored as config.toml
// in the .reel/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Data        DataConfig        `toml:"data"`
	API         APIConfig         `toml:"api"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Recommend   RecommendConfig   `toml:"recommend"`
	Rebuild     RebuildConfig     `toml:"rebuild"`
}

// StorageConfig holds the SQLite vector database settings.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// DataConfig holds the MovieLens CSV input paths.
type DataConfig struct {
	Movies  string `toml:"movies,omitempty"`
	Ratings string `toml:"ratings,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// VectorStoreConfig holds vector store settings. Target is the URL for the
// chroma provider; Host and Port address the qdrant provider.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Host     string `toml:"host,omitempty"`
	Port     int    `toml:"port,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// RecommendConfig holds query-side engine settings.
type RecommendConfig struct {
	TopK        int  `toml:"top_k,omitempty"`
	IncludeSelf bool `toml:"include_self"`
}

// RebuildConfig holds rebuild-side engine settings.
type RebuildConfig struct {
	Workers int `toml:"workers,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.Itoa(*get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"data.movies": {
		get: func(c *Config) string { return c.Data.Movies },
		set: func(c *Config, v string) error { c.Data.Movies = v; return nil },
	},
	"data.ratings": {
		get: func(c *Config) string { return c.Data.Ratings },
		set: func(c *Config, v string) error { c.Data.Ratings = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.host": {
		get: func(c *Config) string { return c.VectorStore.Host },
		set: func(c *Config, v string) error { c.VectorStore.Host = v; return nil },
	},
	"vector_store.port": intKey(func(c *Config) *int { return &c.VectorStore.Port }, "vector_store.port"),
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"recommend.top_k": intKey(func(c *Config) *int { return &c.Recommend.TopK }, "recommend.top_k"),
	"recommend.include_self": {
		get: func(c *Config) string { return strconv.FormatBool(c.Recommend.IncludeSelf) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for recommend.include_self: %w", err)
			}
			c.Recommend.IncludeSelf = b
			return nil
		},
	},
	"rebuild.workers": intKey(func(c *Config) *int { return &c.Rebuild.Workers }, "rebuild.workers"),
}
