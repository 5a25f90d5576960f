package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
)

func TestProfilesPath(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseDir = "/data/rag"
	assert.Equal(t, filepath.Join("/data/rag", profiles.DefaultFileName), profilesPath(&cfg))

	cfg.Profiles.Path = "/elsewhere/p.db"
	assert.Equal(t, "/elsewhere/p.db", profilesPath(&cfg))
}

func TestNewCompleter(t *testing.T) {
	c, err := newCompleter(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	var key config.Secret
	require.NoError(t, key.UnmarshalText([]byte("sk-test")))
	c, err = newCompleter(config.LLMConfig{Provider: "openai", APIKey: key, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = newCompleter(config.LLMConfig{Provider: "anthropic"})
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RAG_TEST_FROM_DOTENV=yes\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RAG_TEST_FROM_DOTENV") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "yes", os.Getenv("RAG_TEST_FROM_DOTENV"))
}
