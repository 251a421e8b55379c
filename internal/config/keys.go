package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CATGPT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "upstream.api_key", typ: kString, env: "CATGPT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Upstream.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.APIKey },
	},
	{
		key: "upstream.base_url", typ: kString, env: "CATGPT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Upstream.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.BaseURL },
	},
	{
		key: "upstream.model", typ: kString, env: "CATGPT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Upstream.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.Model },
	},
	{
		key: "upstream.embed_model", typ: kString, env: "CATGPT_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Upstream.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CATGPT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CATGPT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.chunk_size", typ: kInt, env: "CATGPT_RETRIEVAL_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkSize },
	},
	{
		key: "retrieval.chunk_overlap", typ: kInt, env: "CATGPT_RETRIEVAL_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkOverlap },
	},
	{
		key: "log.level", typ: kString, env: "CATGPT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
