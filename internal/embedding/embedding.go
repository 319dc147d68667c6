package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/config"
)

// Intent tells the embedding service whether text is being indexed or used to search.
type Intent string

const (
	IntentDocument Intent = "passage"
	IntentQuery    Intent = "query"
)

var ErrMalformedResponse = errors.New("malformed embedding response")

// StatusError is a non-2xx answer from the embedding endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding request failed: %d, %s", e.StatusCode, e.Body)
}

// Client calls an OpenAI-compatible /embeddings endpoint that accepts an
// input_type hint (NVIDIA NIM style). No retries.
type Client struct {
	baseURL   string
	key       string
	model     string
	dimension int
	http      *http.Client
}

func NewClient(cfg *config.LLMConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	log.Debug().Interface("config", map[string]any{
		"base_url":  cfg.BaseURL,
		"model":     cfg.Model,
		"dimension": cfg.Dimension,
	}).Msg("Creating embedding client")

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		key:       strings.TrimPrefix(cfg.Key, "Bearer "),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		http:      &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
	}, nil
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	InputType      Intent   `json:"input_type"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch returns one vector per text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embeddingRequest{
		Model:          c.model,
		Input:          texts,
		InputType:      intent,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out embeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrMalformedResponse, len(out.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad index %d", ErrMalformedResponse, d.Index)
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d", ErrMalformedResponse, c.dimension, len(d.Embedding))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// intentClient pins an intent so the client fits langchaingo's EmbedderClient.
type intentClient struct {
	client *Client
	intent Intent
}

func (ic intentClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return ic.client.EmbedBatch(ctx, texts, ic.intent)
}

// Embedder implements embeddings.Embedder: documents are embedded with the
// passage intent in batches, queries with the query intent.
type Embedder struct {
	documents *embeddings.EmbedderImpl
	queries   *embeddings.EmbedderImpl
}

var _ embeddings.Embedder = (*Embedder)(nil)

// NewEmbedder wraps client. batchSize <= 0 keeps langchaingo's default.
func NewEmbedder(client *Client, batchSize int) (*Embedder, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}

	documents, err := embeddings.NewEmbedder(intentClient{client: client, intent: IntentDocument}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document embedder: %w", err)
	}
	queries, err := embeddings.NewEmbedder(intentClient{client: client, intent: IntentQuery}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedder: %w", err)
	}
	return &Embedder{documents: documents, queries: queries}, nil
}

// NewEmbedderFromConfig builds the client and embedder in one step.
func NewEmbedderFromConfig(cfg *config.LLMConfig) (*Embedder, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedder(client, cfg.BatchSize)
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.documents.EmbedDocuments(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.queries.EmbedQuery(ctx, text)
}
