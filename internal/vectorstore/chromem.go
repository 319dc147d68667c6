package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const (
	metaDimension = "dimension"
	metaDistance  = "distance"
)

// Chromem is an embedded vector store backed by chromem-go, either in
// memory or persisted to a directory. It only supports cosine distance.
type Chromem struct {
	db     *chromem.DB
	dbPath string

	mu   sync.RWMutex
	dims map[string]int
}

var _ Store = (*Chromem)(nil)

// NewChromem opens a persistent database at dbPath, or an in-memory one when dbPath is empty.
func NewChromem(dbPath string, compress bool) (*Chromem, error) {
	if dbPath == "" {
		return &Chromem{db: chromem.NewDB(), dims: make(map[string]int)}, nil
	}

	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return &Chromem{db: db, dbPath: dbPath, dims: make(map[string]int)}, nil
}

func (m *Chromem) EnsureCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	if distance != Cosine {
		return fmt.Errorf("chromem only supports cosine distance, got %s", distance)
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	m.mu.Lock()
	m.dims[name] = dimension
	m.mu.Unlock()

	if m.db.GetCollection(name, nil) != nil {
		return nil
	}

	_, err := m.db.CreateCollection(name, map[string]string{
		metaDimension: strconv.Itoa(dimension),
		metaDistance:  string(distance),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	log.Info().Str("collection", name).Str("path", m.dbPath).Msg("Created collection")
	return nil
}

func (m *Chromem) collection(name string) (*chromem.Collection, error) {
	c := m.db.GetCollection(name, nil)
	if c == nil {
		return nil, fmt.Errorf("chromem collection %s: %w", name, ErrNotFound)
	}
	return c, nil
}

func (m *Chromem) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	c, err := m.collection(name)
	if err != nil {
		return err
	}

	m.mu.RLock()
	dimension := m.dims[name]
	m.mu.RUnlock()

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if dimension > 0 && len(p.Vector) != dimension {
			return fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), dimension)
		}
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Content,
			Metadata:  stringifyMetadata(p.Metadata),
			Embedding: p.Vector,
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *Chromem) Search(ctx context.Context, name string, vector []float32, k int) ([]Hit, error) {
	c, err := m.collection(name)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection
	k = min(k, c.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		meta := make(map[string]any, len(r.Metadata))
		for key, v := range r.Metadata {
			meta[key] = v
		}
		hits[i] = Hit{ID: r.ID, Score: r.Similarity, Content: r.Content, Metadata: meta}
	}
	return hits, nil
}

func (m *Chromem) Info(ctx context.Context, name string) (CollectionInfo, error) {
	c, err := m.collection(name)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{Name: name, PointsCount: c.Count()}, nil
}

func (m *Chromem) Drop(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.dims, name)
	m.mu.Unlock()

	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func stringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}
