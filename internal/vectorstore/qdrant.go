package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

// Qdrant talks to a Qdrant server over its REST API. Payloads use the
// LangChain layout: {"page_content": ..., "metadata": {...}}.
type Qdrant struct {
	url    string
	apiKey string
	client *http.Client
}

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	return &Qdrant{
		url:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ Store = (*Qdrant)(nil)

func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	info, err := q.Info(ctx, name)
	if err == nil {
		if info.Dimension != 0 && info.Dimension != dimension {
			return fmt.Errorf("%w: %s has %d, want %d", ErrDimensionMismatch, name, info.Dimension, dimension)
		}
		log.Debug().Str("collection", name).Msg("Collection already exists")
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": string(distance),
		},
	}
	err = q.do(ctx, http.MethodPut, q.collectionURL(name), body, nil)
	var statusErr *StatusError
	switch {
	case err == nil:
		log.Info().Str("collection", name).Int("dimension", dimension).Msg("Created collection")
		return nil
	case errors.As(err, &statusErr) && alreadyExists(statusErr):
		// created concurrently by someone else
		return nil
	default:
		return err
	}
}

func alreadyExists(err *StatusError) bool {
	return err.StatusCode == http.StatusConflict ||
		(err.StatusCode == http.StatusBadRequest && strings.Contains(err.Body, "already exists"))
}

func (q *Qdrant) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	type qdrantPoint struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}

	for i, p := range points {
		body.Points[i] = qdrantPoint{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: map[string]any{
				models.PayloadContentKey:  p.Content,
				models.PayloadMetadataKey: p.Metadata,
			},
		}
	}
	return q.do(ctx, http.MethodPut, q.collectionURL(name)+"/points?wait=true", body, nil)
}

func (q *Qdrant) Search(ctx context.Context, name string, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionURL(name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := Hit{ID: fmt.Sprint(r.ID), Score: r.Score}
		if v, ok := r.Payload[models.PayloadContentKey].(string); ok {
			hit.Content = v
		}
		if v, ok := r.Payload[models.PayloadMetadataKey].(map[string]any); ok {
			hit.Metadata = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (q *Qdrant) Info(ctx context.Context, name string) (CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount *int `json:"points_count"`
			Config      struct {
				Params struct {
					// named vectors leave Size at zero
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, q.collectionURL(name), nil, &resp); err != nil {
		return CollectionInfo{}, err
	}

	info := CollectionInfo{Name: name, Dimension: resp.Result.Config.Params.Vectors.Size}
	if resp.Result.PointsCount != nil {
		info.PointsCount = *resp.Result.PointsCount
	}
	return info, nil
}

func (q *Qdrant) Drop(ctx context.Context, name string) error {
	err := q.do(ctx, http.MethodDelete, q.collectionURL(name), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (q *Qdrant) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", q.url, url.PathEscape(name))
}

func (q *Qdrant) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, target, err)
	}
	defer resp.Body.Close()

	op := "qdrant " + method + " " + target
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrPermission)
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}
