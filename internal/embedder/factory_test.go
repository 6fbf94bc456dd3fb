package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/kberr"
)

func TestNewFromEnvDefaultChain(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOllamaHost, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	r, err := NewFromEnv(nil)
	require.NoError(t, err)
	require.Len(t, r.providers, 3)
	assert.Equal(t, ProviderOllama, r.providers[0].Name())
	assert.Equal(t, ProviderOpenAI, r.providers[1].Name())
	assert.Equal(t, ProviderJina, r.providers[2].Name())
}

func TestNewFromEnvExplicitProvider(t *testing.T) {
	t.Setenv(EnvProvider, "openai")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	r, err := NewFromEnv(nil)
	require.NoError(t, err)
	require.Len(t, r.providers, 1)
	assert.Equal(t, ProviderOpenAI, r.providers[0].Name())
}

func TestNewFromEnvUnknownProvider(t *testing.T) {
	t.Setenv(EnvProvider, "quantum")

	_, err := NewFromEnv(nil)
	assert.Equal(t, kberr.KindValidation, kberr.KindOf(err))
}
