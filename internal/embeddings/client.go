// Package embeddings provides the embedding function used by the vector
// store. Ollama is served by a local client; OpenAI and compatible
// endpoints use chromem-go's built-in functions.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/khariha/ferris-wheel/internal/config"
	"github.com/khariha/ferris-wheel/internal/httpkit"
)

// Client generates embeddings using Ollama's embedding API.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config for embedding client.
type Config struct {
	BaseURL string // Ollama base URL (e.g., "http://localhost:11434")
	Model   string // Embedding model (e.g., "nomic-embed-text")
}

// New creates an embedding client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30 * time.Second),
		),
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate creates an embedding for the given text. The vector is
// normalized to unit length.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", c.model)
	}

	return Normalize(embedResp.Embedding), nil
}

// Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Func returns the embedding function selected by cfg.
func Func(cfg config.EmbeddingsConfig, openai config.OpenAIConfig) (chromem.EmbeddingFunc, error) {
	switch cfg.Provider {
	case "", "ollama":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embeddings: ollama base URL is required")
		}
		return New(Config{BaseURL: cfg.BaseURL, Model: cfg.Model}).Generate, nil

	case "openai":
		if !openai.Configured() {
			return nil, fmt.Errorf("embeddings: openai provider needs openai.api_key")
		}
		model := cfg.Model
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.BaseURL
		}
		if baseURL == "" {
			return chromem.NewEmbeddingFuncOpenAI(openai.APIKey, chromem.EmbeddingModelOpenAI(model)), nil
		}
		return chromem.NewEmbeddingFuncOpenAICompat(baseURL, openai.APIKey, model, nil), nil

	default:
		return nil, fmt.Errorf("embeddings: unknown provider %q", cfg.Provider)
	}
}
