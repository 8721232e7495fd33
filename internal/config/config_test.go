// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// isolate points every default search path at empty temp directories.
func isolate(t *testing.T) Options {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return Options{
		EnvFile:    filepath.Join(t.TempDir(), "missing.env"),
		SecretsDir: filepath.Join(t.TempDir(), "secrets"),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	loaded, err := Load(isolate(t))
	require.NoError(t, err)
	assert.Empty(t, loaded.File)

	cfg := loaded.Config
	assert.Equal(t, types.ChunkingConfig{Size: 512, Overlap: 50}, cfg.Chunking)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, types.ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "qwen2:7b-instruct", cfg.LLM.Model)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, types.FormatCSV, cfg.Output.Format)
	assert.Equal(t, types.PDFNative, cfg.Source.PDFConverter)
	assert.Equal(t, cfg, Defaults())
}

func TestLoadFileAndEnv(t *testing.T) {
	opts := isolate(t)
	opts.File = writeFile(t, t.TempDir(), "custom.yaml", `
chunking:
  size: 500
  overlap: 50
retrieval:
  top_k: 4
llm:
  provider: openai
  model: gpt-4o-mini
  timeout: 45s
  temperature: 0.3
  fallback:
    - provider: anthropic
      model: claude-3-5-haiku-latest
    - provider: ollama
      model: llama3
      max_tokens: 200
`)
	t.Setenv("PAPER_EXTRACT_RETRIEVAL_TOP_K", "5")
	t.Setenv("PAPER_EXTRACT_LLM_API_KEY", "sk-env")

	loaded, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, opts.File, loaded.File)

	cfg := loaded.Config
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 5, cfg.Retrieval.TopK, "environment beats file")
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)

	require.Len(t, cfg.LLM.Fallback, 2)
	fb := cfg.LLM.Fallback[0]
	assert.InDelta(t, 0.3, fb.Temperature, 1e-9, "inherited")
	assert.Equal(t, 500, fb.MaxTokens, "inherited")
	assert.Equal(t, 45*time.Second, fb.Timeout, "inherited")
	assert.Equal(t, 200, cfg.LLM.Fallback[1].MaxTokens, "own value kept")
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	opts := isolate(t)
	writeFile(t, ".", "paper-extract.yaml", "concurrency: 4\n")

	loaded, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Config.Concurrency)
	assert.Contains(t, loaded.File, "paper-extract.yaml")
}

func TestLoadEnvFile(t *testing.T) {
	opts := isolate(t)
	opts.EnvFile = writeFile(t, t.TempDir(), ".env", "PAPER_EXTRACT_CONCURRENCY=6\n")
	t.Cleanup(func() { os.Unsetenv("PAPER_EXTRACT_CONCURRENCY") })

	loaded, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Config.Concurrency)
}

func TestLoadSecretsFillEmptyKeys(t *testing.T) {
	opts := isolate(t)
	require.NoError(t, os.MkdirAll(opts.SecretsDir, 0o755))
	writeFile(t, opts.SecretsDir, "anthropic-api-key", "sk-ant\n")
	opts.File = writeFile(t, t.TempDir(), "c.yaml", `
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
`)

	loaded, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", loaded.Config.LLM.APIKey)
	assert.Equal(t, []string{"anthropic-api-key"}, loaded.Secrets)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"overlap too large", "chunking:\n  size: 100\n  overlap: 100\n", "chunking.overlap"},
		{"zero top_k", "retrieval:\n  top_k: 0\n", "retrieval.top_k"},
		{"unknown provider", "llm:\n  provider: bard\n", "llm.provider"},
		{"anthropic embeddings", "embedding:\n  provider: anthropic\n", "embedding.provider"},
		{"bad format", "output:\n  format: xlsx\n", "output.format"},
		{"bad converter", "source:\n  pdf_converter: grobid\n", "source.pdf_converter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := isolate(t)
			opts.File = writeFile(t, t.TempDir(), "c.yaml", tt.yaml)
			_, err := Load(opts)
			require.Error(t, err)
			var ce *types.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	opts := isolate(t)
	opts.File = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(opts)
	assert.True(t, types.IsConfigError(err))
}

func TestParseFields(t *testing.T) {
	list := `
- field_name: sample_size
  description: Number of participants enrolled
  type: integer
- field_name: country
  description: Country where the study took place
`
	fields, err := ParseFields([]byte(list))
	require.NoError(t, err)
	assert.Equal(t, []types.FieldSpec{
		{Name: "sample_size", Description: "Number of participants enrolled", Type: "integer"},
		{Name: "country", Description: "Country where the study took place"},
	}, fields)

	wrapped, err := ParseFields([]byte("fields:\n  - field_name: a\n    description: b\n"))
	require.NoError(t, err)
	assert.Equal(t, []types.FieldSpec{{Name: "a", Description: "b"}}, wrapped)
}

func TestParseFieldsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"scalar", "just text"},
		{"misspelt key", "- name: a\n  description: b\n"},
		{"duplicate", "- {field_name: a, description: b}\n- {field_name: a, description: c}\n"},
		{"empty description", "- {field_name: a, description: ''}\n"},
		{"malformed", "- field_name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFields([]byte(tt.doc))
			assert.True(t, types.IsConfigError(err), "%v", err)
		})
	}
}

func TestLoadFilesMissing(t *testing.T) {
	_, err := LoadFields(filepath.Join(t.TempDir(), "fields.yaml"))
	assert.True(t, types.IsConfigError(err))
}
