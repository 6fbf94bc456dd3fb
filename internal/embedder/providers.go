package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"

	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"

	OllamaDimension = 768
	OpenAIDimension = 1536
	JinaDimension   = 1024

	DefaultOllamaURL = "http://localhost:11434"

	MaxBatchSize = 100

	// Health probe timeout for the local provider.
	probeTimeout = 3 * time.Second

	// Retry configuration for cloud API calls.
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// OllamaProvider generates embeddings from a local Ollama instance.
// Availability is probed over HTTP; a machine without Ollama running simply
// yields an unavailable provider, not an error.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	// Probe result cached briefly so a burst of Embed calls doesn't hit
	// /api/tags once per call.
	mu        sync.Mutex
	probedAt  time.Time
	probeOK   bool
	probeOnce bool
}

// NewOllamaProvider creates an Ollama provider against baseURL, which
// defaults to the standard local port when empty.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaProvider) Name() string { return ProviderOllama }

// Available probes the Ollama API. The result is cached for a short window.
func (o *OllamaProvider) Available(ctx context.Context) bool {
	o.mu.Lock()
	if o.probeOnce && time.Since(o.probedAt) < 30*time.Second {
		ok := o.probeOK
		o.mu.Unlock()
		return ok
	}
	o.mu.Unlock()

	ok := o.probe(ctx)

	o.mu.Lock()
	o.probeOK = ok
	o.probedAt = time.Now()
	o.probeOnce = true
	o.mu.Unlock()
	return ok
}

func (o *OllamaProvider) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	body, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return &Embedding{
		Vector:    apiResp.Embedding,
		Dimension: len(apiResp.Embedding),
		Provider:  ProviderOllama,
		Model:     o.model,
	}, nil
}

// EmbedBatch issues one request per text. The Ollama embeddings endpoint is
// single-prompt.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	embeddings := make([]*Embedding, len(texts))
	for i, text := range texts {
		emb, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func (o *OllamaProvider) Dimension() int { return OllamaDimension }

// openAICompatible implements the OpenAI-style /v1/embeddings wire format,
// shared by the OpenAI and Jina providers.
type openAICompatible struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

func (p *openAICompatible) Name() string { return p.name }

// Available is a credential check: a cloud provider with no API key is
// skipped without a network round trip.
func (p *openAICompatible) Available(_ context.Context) bool {
	return p.apiKey != ""
}

func (p *openAICompatible) Embed(ctx context.Context, text string) (*Embedding, error) {
	embs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embs[0], nil
}

func (p *openAICompatible) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(texts), MaxBatchSize)
	}

	return retryWithBackoff(ctx, DefaultRetryConfig(), func() ([]*Embedding, error) {
		return p.callAPI(ctx, texts)
	})
}

func (p *openAICompatible) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts))
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}
	return embeddings, nil
}

func (p *openAICompatible) Dimension() int { return p.dimension }

// NewOpenAIProvider creates an OpenAI embedder. An empty apiKey yields an
// unavailable provider rather than an error, so it can sit in the registry
// chain unconditionally.
func NewOpenAIProvider(apiKey string) Provider {
	return &openAICompatible{
		name:       ProviderOpenAI,
		endpoint:   "https://api.openai.com/v1/embeddings",
		apiKey:     apiKey,
		model:      DefaultOpenAIModel,
		dimension:  OpenAIDimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewJinaProvider creates a Jina AI embedder. Same credential semantics as
// NewOpenAIProvider.
func NewJinaProvider(apiKey string) Provider {
	return &openAICompatible{
		name:       ProviderJina,
		endpoint:   "https://api.jina.ai/v1/embeddings",
		apiKey:     apiKey,
		model:      DefaultJinaModel,
		dimension:  JinaDimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}
