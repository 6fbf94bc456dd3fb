package embedder

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lodestone-kb/lodestone/internal/kberr"
)

// Environment variables for provider configuration.
const (
	EnvProvider     = "LODESTONE_EMBEDDING_PROVIDER"
	EnvOllamaHost   = "OLLAMA_HOST"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// NewFromEnv builds the provider registry from environment variables.
//
// With LODESTONE_EMBEDDING_PROVIDER set (ollama, openai, jina), the registry
// holds only that provider. Otherwise the default chain applies: local
// Ollama first, then the cloud providers in order — each skipped at call
// time when its credential or endpoint is missing. A registry is always
// returned; an empty chain surfaces as provider-unavailable at embed time.
func NewFromEnv(logger *slog.Logger) (*Registry, error) {
	cache := NewCache(10000)
	ollamaHost := os.Getenv(EnvOllamaHost)

	if explicit := strings.ToLower(os.Getenv(EnvProvider)); explicit != "" {
		switch explicit {
		case ProviderOllama:
			return NewRegistry(logger, cache, NewOllamaProvider(ollamaHost, "")), nil
		case ProviderOpenAI:
			return NewRegistry(logger, cache, NewOpenAIProvider(os.Getenv(EnvOpenAIAPIKey))), nil
		case ProviderJina:
			return NewRegistry(logger, cache, NewJinaProvider(os.Getenv(EnvJinaAPIKey))), nil
		default:
			return nil, kberr.Newf(kberr.KindValidation, "unknown embedding provider %q", explicit)
		}
	}

	return NewRegistry(logger, cache,
		NewOllamaProvider(ollamaHost, ""),
		NewOpenAIProvider(os.Getenv(EnvOpenAIAPIKey)),
		NewJinaProvider(os.Getenv(EnvJinaAPIKey)),
	), nil
}
