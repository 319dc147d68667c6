package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// fakeQdrant implements the handful of Qdrant REST routes the client uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]fakePoint
	sizes       map[string]int
	apiKey      string
	creates     int
	// createStatus forces the status of collection creation when non-zero.
	createStatus int
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string][]fakePoint), sizes: make(map[string]int)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.apiKey != "" && r.Header.Get("api-key") != f.apiKey {
		http.Error(w, `{"status":{"error":"forbidden"}}`, http.StatusForbidden)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]
	points, exists := f.collections[name]

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !exists {
			http.Error(w, `{"status":{"error":"Not found: Collection doesn't exist!"}}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"status":       "green",
			"points_count": len(points),
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": f.sizes[name], "distance": "Cosine"},
			}},
		}, "status": "ok"})
	case len(parts) == 2 && r.Method == http.MethodPut:
		f.creates++
		if f.createStatus != 0 {
			http.Error(w, `{"status":{"error":"Collection already exists!"}}`, f.createStatus)
			return
		}
		if exists {
			http.Error(w, `{"status":{"error":"Wrong input: Collection already exists!"}}`, http.StatusBadRequest)
			return
		}
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.collections[name] = []fakePoint{}
		f.sizes[name] = body.Vectors.Size
		writeJSON(w, map[string]any{"result": true, "status": "ok"})
	case len(parts) == 2 && r.Method == http.MethodDelete:
		delete(f.collections, name)
		delete(f.sizes, name)
		writeJSON(w, map[string]any{"result": exists, "status": "ok"})
	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		if !exists {
			http.Error(w, `{}`, http.StatusNotFound)
			return
		}
		var body struct {
			Points []fakePoint `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.collections[name] = append(points, body.Points...)
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}, "status": "ok"})
	case len(parts) == 4 && parts[3] == "search" && r.Method == http.MethodPost:
		if !exists {
			http.Error(w, `{}`, http.StatusNotFound)
			return
		}
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type scored struct {
			ID      string         `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		results := make([]scored, 0, len(points))
		for _, p := range points {
			results = append(results, scored{ID: p.ID, Score: cosine(body.Vector, p.Vector), Payload: p.Payload})
		}
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > body.Limit {
			results = results[:body.Limit]
		}
		writeJSON(w, map[string]any{"result": results, "status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func TestQdrantEnsureCollectionIdempotent(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL})
	ctx := context.Background()

	_, err := q.Info(ctx, "docs")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, q.EnsureCollection(ctx, "docs", 3, Cosine))
	require.NoError(t, q.EnsureCollection(ctx, "docs", 3, Cosine))
	assert.Equal(t, 1, fake.creates, "existing collection must not be recreated")

	info, err := q.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, CollectionInfo{Name: "docs", PointsCount: 0, Dimension: 3}, info)

	assert.Error(t, q.EnsureCollection(ctx, "docs", 0, Cosine))
}

func TestQdrantEnsureCollectionDimensionMismatch(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL})
	ctx := context.Background()

	require.NoError(t, q.EnsureCollection(ctx, "docs", 3, Cosine))

	err := q.EnsureCollection(ctx, "docs", 1024, Cosine)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "has 3, want 1024")
	assert.Equal(t, 1, fake.creates, "a mismatched collection is reported, not recreated")

	// clearing rebuilds it at the requested size
	require.NoError(t, Recreate(ctx, q, "docs", 1024, Cosine))
	info, err := q.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1024, info.Dimension)
}

func TestQdrantEnsureCollectionRace(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	fake.createStatus = http.StatusConflict
	q := NewQdrant(QdrantConfig{URL: srv.URL})

	assert.NoError(t, q.EnsureCollection(context.Background(), "docs", 3, Cosine))
}

func TestQdrantEnsureCollectionPermission(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	fake.apiKey = "secret"

	q := NewQdrant(QdrantConfig{URL: srv.URL})
	err := q.EnsureCollection(context.Background(), "docs", 3, Cosine)
	assert.ErrorIs(t, err, ErrPermission)
	assert.Zero(t, fake.creates, "permission errors must not fall through to creation")

	q = NewQdrant(QdrantConfig{URL: srv.URL, APIKey: "secret"})
	assert.NoError(t, q.EnsureCollection(context.Background(), "docs", 3, Cosine))
}

func TestQdrantTransportError(t *testing.T) {
	_, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL})
	srv.Close()

	err := q.EnsureCollection(context.Background(), "docs", 3, Cosine)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestQdrantUpsertAndSearch(t *testing.T) {
	_, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL + "/"})
	ctx := context.Background()
	require.NoError(t, q.EnsureCollection(ctx, "docs", 3, Cosine))

	points := []Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Content: "alpha", Metadata: map[string]any{"source": "a.pdf", "chunk_id": 0}},
		{ID: "b", Vector: []float32{0, 1, 0}, Content: "beta", Metadata: map[string]any{"source": "b.pdf", "chunk_id": 1}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Content: "gamma", Metadata: map[string]any{"source": "a.pdf", "chunk_id": 2}},
	}
	require.NoError(t, q.Upsert(ctx, "docs", points))
	require.NoError(t, q.Upsert(ctx, "docs", nil))

	info, err := q.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, info.PointsCount)

	hits, err := q.Search(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "alpha", hits[0].Content)
	assert.Equal(t, "a.pdf", hits[0].Metadata["source"])
	assert.Equal(t, float64(0), hits[0].Metadata["chunk_id"])
	assert.Equal(t, "c", hits[1].ID)

	hits, err = q.Search(ctx, "docs", []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQdrantUpsertMissingCollection(t *testing.T) {
	_, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL})

	err := q.Upsert(context.Background(), "missing", []Point{{ID: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQdrantDropAndRecreate(t *testing.T) {
	_, srv := newFakeQdrant(t)
	q := NewQdrant(QdrantConfig{URL: srv.URL})
	ctx := context.Background()

	// dropping something that is not there is fine
	require.NoError(t, q.Drop(ctx, "docs"))

	require.NoError(t, q.EnsureCollection(ctx, "docs", 2, Cosine))
	require.NoError(t, q.Upsert(ctx, "docs", []Point{{ID: "a", Vector: []float32{1, 0}, Content: "x"}}))

	require.NoError(t, Recreate(ctx, q, "docs", 2, Cosine))

	info, err := q.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Op: "qdrant PUT x", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "qdrant PUT x failed: 500, boom", err.Error())
}
