// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config assembles the run configuration from defaults, a YAML
// config file, a .env file, PAPER_EXTRACT_* environment variables, and the
// .secrets/ directory, in increasing order of precedence for everything but
// secrets, which only fill API keys left empty.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/secrets"
	"github.com/pdiddy/paper-extract/pkg/types"
)

const (
	// Name is the config file base name searched for in the working
	// directory and ~/.config/paper-extract/.
	Name = "paper-extract"

	// EnvPrefix prefixes environment overrides: PAPER_EXTRACT_RETRIEVAL_TOP_K
	// sets retrieval.top_k.
	EnvPrefix = "PAPER_EXTRACT"

	// DefaultEnvFile is loaded into the environment before overrides are read.
	DefaultEnvFile = ".env"
)

// Options locates the configuration sources. Zero values select defaults.
type Options struct {
	// File is an explicit config file; it must exist.
	File string

	// EnvFile is loaded when present. Defaults to DefaultEnvFile.
	EnvFile string

	// SecretsDir holds API key files. Defaults to secrets.DefaultDir.
	SecretsDir string

	Log *zap.Logger
}

// Loaded is a validated configuration and where it came from.
type Loaded struct {
	Config types.Config

	// File is the config file read, or "" when defaults and the
	// environment were used alone.
	File string

	// Secrets lists the key files that filled an API key.
	Secrets []string
}

// Load reads and validates the configuration. Every invalid value is
// reported as a *types.ConfigError.
func Load(opts Options) (Loaded, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return Loaded{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
	}

	var loaded Loaded
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Loaded{}, types.NewConfigError("config", "%v", err)
		}
	} else {
		loaded.File = v.ConfigFileUsed()
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, types.NewConfigError("config", "decoding: %v", err)
	}
	inheritFallbacks(&cfg.LLM)

	secretsDir := opts.SecretsDir
	if secretsDir == "" {
		secretsDir = secrets.DefaultDir
	}
	s, err := secrets.Load(secretsDir, log)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Secrets = append(secrets.Fill(&cfg.Embedding, s), secrets.Fill(&cfg.LLM, s)...)

	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	loaded.Config = cfg
	return loaded, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() types.Config {
	v := viper.New()
	setDefaults(v)
	var cfg types.Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("papers_dir", "papers")
	v.SetDefault("fields_file", "fields.yaml")
	v.SetDefault("cache_dir", ".paper-extract")

	v.SetDefault("source.pdf_converter", types.PDFNative)
	v.SetDefault("source.image", "")

	v.SetDefault("output.path", "results.csv")
	v.SetDefault("output.format", types.FormatCSV)

	v.SetDefault("chunking.size", 512)
	v.SetDefault("chunking.overlap", 50)

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.max_prompt_chars", 12000)

	v.SetDefault("embedding.provider", types.ProviderOllama)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", time.Minute)

	v.SetDefault("llm.provider", types.ProviderOllama)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "qwen2:7b-instruct")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 500)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.max_elapsed", 2*time.Minute)

	v.SetDefault("concurrency", 2)
	v.SetDefault("index_cache_size", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// inheritFallbacks copies unset generation parameters from the primary LLM
// to each fallback so the chain answers with the same settings.
func inheritFallbacks(llm *types.BackendConfig) {
	for i := range llm.Fallback {
		fb := &llm.Fallback[i]
		if fb.Temperature == 0 {
			fb.Temperature = llm.Temperature
		}
		if fb.MaxTokens == 0 {
			fb.MaxTokens = llm.MaxTokens
		}
		if fb.Timeout == 0 {
			fb.Timeout = llm.Timeout
		}
	}
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return types.NewConfigError("env_file", "%s: %v", path, err)
	}
	return nil
}
