// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-extract pipeline:
// papers and chunks, field specs, extraction results, the result table,
// configuration, and the error taxonomy.
package types

import (
	"slices"
	"time"
)

// Providers accepted for embedding and generation backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderVLLM      = "vllm"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Output formats accepted for the result table.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// BackendConfig describes one embedding or LLM backend.
type BackendConfig struct {
	// Provider selects the client: ollama, openai, vllm, anthropic, gemini.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Model is the model identifier, including any version tag
	// (e.g. "qwen2:7b-instruct"). It is part of every cache fingerprint.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against hosted providers.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`

	// Timeout bounds a single request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Temperature and MaxTokens are generation parameters; embedders ignore them.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Fallback lists backends tried in order when this one fails.
	Fallback []BackendConfig `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`
}

// ChunkingConfig holds the chunker parameters, measured in characters.
type ChunkingConfig struct {
	Size    int `json:"size" yaml:"size" mapstructure:"size"`
	Overlap int `json:"overlap" yaml:"overlap" mapstructure:"overlap"`
}

// Validate checks size > 0 and 0 <= overlap < size.
func (c ChunkingConfig) Validate() error {
	if c.Size <= 0 {
		return NewConfigError("chunking.size", "must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return NewConfigError("chunking.overlap", "must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return NewConfigError("chunking.overlap", "must be smaller than chunking.size (%d >= %d)", c.Overlap, c.Size)
	}
	return nil
}

// RetrievalConfig controls top-k retrieval and prompt composition.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per field.
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// MaxPromptChars bounds the composed prompt. Lowest-ranked chunks are
	// dropped first when the budget is exceeded.
	MaxPromptChars int `json:"max_prompt_chars" yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
}

// RetryConfig bounds retries of backend calls.
type RetryConfig struct {
	// MaxAttempts counts the first call (default 3).
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	MaxElapsed  time.Duration `json:"max_elapsed" yaml:"max_elapsed" mapstructure:"max_elapsed"`
}

// PDF converters accepted in SourceConfig.
const (
	PDFNative     = "native"
	PDFMarkitdown = "markitdown"
)

// SourceConfig controls how paper files are turned into page text.
type SourceConfig struct {
	// PDFConverter is "native" (in-process text extraction) or "markitdown"
	// (the markitdown container image run through docker or podman).
	PDFConverter string `json:"pdf_converter" yaml:"pdf_converter" mapstructure:"pdf_converter"`

	// Image overrides the markitdown container image.
	Image string `json:"image,omitempty" yaml:"image,omitempty" mapstructure:"image"`
}

// OutputConfig selects where and how the result table is written.
type OutputConfig struct {
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File enables a rotated JSON log file in addition to stderr.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// Config is the immutable configuration for one run. It is passed by value
// from the batch runner down to every worker.
type Config struct {
	PapersDir  string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`
	FieldsFile string `json:"fields_file" yaml:"fields_file" mapstructure:"fields_file"`
	CacheDir   string `json:"cache_dir" yaml:"cache_dir" mapstructure:"cache_dir"`

	Source    SourceConfig    `json:"source" yaml:"source" mapstructure:"source"`
	Output    OutputConfig    `json:"output" yaml:"output" mapstructure:"output"`
	Chunking  ChunkingConfig  `json:"chunking" yaml:"chunking" mapstructure:"chunking"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Embedding BackendConfig   `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	LLM       BackendConfig   `json:"llm" yaml:"llm" mapstructure:"llm"`
	Retry     RetryConfig     `json:"retry" yaml:"retry" mapstructure:"retry"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`

	// Concurrency is the number of papers processed at once.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// IndexCacheSize bounds the number of per-paper indices held in memory.
	IndexCacheSize int `json:"index_cache_size" yaml:"index_cache_size" mapstructure:"index_cache_size"`
}

var knownProviders = []string{ProviderOllama, ProviderOpenAI, ProviderVLLM, ProviderAnthropic, ProviderGemini}

// Validate checks every value the pipeline depends on.
func (c Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.Retrieval.TopK <= 0 {
		return NewConfigError("retrieval.top_k", "must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxPromptChars < 0 {
		return NewConfigError("retrieval.max_prompt_chars", "must not be negative")
	}
	if c.Concurrency <= 0 {
		return NewConfigError("concurrency", "must be positive, got %d", c.Concurrency)
	}
	if c.Retry.MaxAttempts <= 0 {
		return NewConfigError("retry.max_attempts", "must be positive, got %d", c.Retry.MaxAttempts)
	}
	if err := validateBackend("embedding", c.Embedding); err != nil {
		return err
	}
	if c.Embedding.Provider == ProviderAnthropic {
		return NewConfigError("embedding.provider", "anthropic has no embedding API")
	}
	if err := validateBackend("llm", c.LLM); err != nil {
		return err
	}
	for _, fb := range c.LLM.Fallback {
		if err := validateBackend("llm.fallback", fb); err != nil {
			return err
		}
	}
	switch c.Source.PDFConverter {
	case "", PDFNative, PDFMarkitdown:
	default:
		return NewConfigError("source.pdf_converter", "unsupported converter %q: use native or markitdown", c.Source.PDFConverter)
	}
	switch c.Output.Format {
	case FormatCSV, FormatJSON, FormatYAML:
	default:
		return NewConfigError("output.format", "unsupported format %q: use csv, json, or yaml", c.Output.Format)
	}
	return nil
}

func validateBackend(key string, b BackendConfig) error {
	if !slices.Contains(knownProviders, b.Provider) {
		return NewConfigError(key+".provider", "unsupported provider %q", b.Provider)
	}
	if b.Model == "" {
		return NewConfigError(key+".model", "must not be empty")
	}
	return nil
}

// RunOptions carries the per-invocation flags. Like Config it is immutable
// once the run starts.
type RunOptions struct {
	// Force recomputes every index and extraction, then overwrites the cache.
	Force bool

	// DryRun runs the full pipeline but persists nothing.
	DryRun bool

	// ClearCache deletes cached data for the targeted papers before processing.
	ClearCache bool

	// SkipHealthCheck disables the pre-flight backend probe.
	SkipHealthCheck bool
}
