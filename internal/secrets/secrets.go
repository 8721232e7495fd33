// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider API keys from a directory of plain-text
// files. Each file is one secret: the file name is the key name and the
// trimmed contents are the value.
//
// Recognised key files: anthropic-api-key, openai-api-key, gemini-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

// providerKeys maps hosted providers to their key file. Ollama and vLLM run
// locally and need none.
var providerKeys = map[string]string{
	types.ProviderAnthropic: "anthropic-api-key",
	types.ProviderOpenAI:    "openai-api-key",
	types.ProviderGemini:    "gemini-api-key",
}

// KeyName returns the key file name for provider, or "" when the provider
// takes no API key.
func KeyName(provider string) string {
	return providerKeys[provider]
}

// Load reads all files in dir and returns a map of file name to trimmed
// contents. A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Fill sets the API key of b and of each of its fallbacks from secrets
// where the configuration left it empty. It returns the key names used.
func Fill(b *types.BackendConfig, secrets map[string]string) []string {
	var used []string
	if b.APIKey == "" {
		if name := KeyName(b.Provider); name != "" {
			if v, ok := secrets[name]; ok {
				b.APIKey = v
				used = append(used, name)
			}
		}
	}
	for i := range b.Fallback {
		used = append(used, Fill(&b.Fallback[i], secrets)...)
	}
	return used
}
