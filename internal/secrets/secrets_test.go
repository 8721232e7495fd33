// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "  sk-ant-abc  \n")
				writeFile(t, dir, "openai-api-key", "sk-xyz")
				return dir
			},
			want: map[string]string{
				"anthropic-api-key": "sk-ant-abc",
				"openai-api-key":    "sk-xyz",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files and dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "gemini-api-key", "g-key")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				return dir
			},
			want: map[string]string{"gemini-api-key": "g-key"},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "ak_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{"anthropic-api-key": "ak_123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	dir := t.TempDir()
	writeFile(t, dir, "openai-api-key", "value123")

	badPath := filepath.Join(dir, "anthropic-api-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai-api-key": "value123"}, got)
}

func TestFill(t *testing.T) {
	secrets := map[string]string{
		"anthropic-api-key": "ant",
		"gemini-api-key":    "gem",
	}
	b := types.BackendConfig{
		Provider: types.ProviderOllama,
		Fallback: []types.BackendConfig{
			{Provider: types.ProviderAnthropic},
			{Provider: types.ProviderGemini, APIKey: "from-config"},
			{Provider: types.ProviderOpenAI},
		},
	}

	used := Fill(&b, secrets)
	assert.Equal(t, []string{"anthropic-api-key"}, used)
	assert.Empty(t, b.APIKey, "ollama takes no key")
	assert.Equal(t, "ant", b.Fallback[0].APIKey)
	assert.Equal(t, "from-config", b.Fallback[1].APIKey, "configured key wins")
	assert.Empty(t, b.Fallback[2].APIKey)
}

func TestKeyName(t *testing.T) {
	assert.Equal(t, "openai-api-key", KeyName(types.ProviderOpenAI))
	assert.Empty(t, KeyName(types.ProviderVLLM))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
