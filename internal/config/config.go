// Package config loads settings from a JSON config file with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type UpstreamConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Upstream: UpstreamConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "qwen2-72b-instruct",
			EmbedModel: "text-embedding-ada-002",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			ChunkSize:    1024,
			ChunkOverlap: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "catgpt-data"
		}
	}
	return filepath.Join(dir, "catgpt")
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/catgpt/config.json, then applies CATGPT_* environment
// overrides. The upstream API key is required and only accepted from the
// environment.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Upstream.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: upstream API key; set environment variable CATGPT_API_KEY")
	}

	return cfg, nil
}
