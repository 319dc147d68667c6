package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	Cosine    Distance = "Cosine"
	Euclidean Distance = "Euclid"
	Dot       Distance = "Dot"
)

var (
	ErrNotFound   = errors.New("collection not found")
	ErrPermission = errors.New("permission denied")
	ErrTransport  = errors.New("vector store unreachable")
	// ErrDimensionMismatch means an existing collection stores vectors of another size.
	ErrDimensionMismatch = errors.New("collection vector size mismatch")
)

// StatusError is an unexpected HTTP status from a remote store.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d, %s", e.Op, e.StatusCode, e.Body)
}

// Point is one vector with the payload stored next to it.
type Point struct {
	ID      string
	Vector  []float32
	Content string
	// Metadata values must be JSON scalars (string, int, float, bool).
	Metadata map[string]any
}

// Hit is a search result, best match first.
type Hit struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

type CollectionInfo struct {
	Name        string
	PointsCount int
	// Dimension is the vector size, 0 when the store does not report it.
	Dimension int
}

// Store is the vector database used for chunk storage and retrieval.
type Store interface {
	// EnsureCollection creates name if it does not exist; an existing collection is left untouched.
	EnsureCollection(ctx context.Context, name string, dimension int, distance Distance) error
	// Upsert adds points. Points are never deduplicated by payload.
	Upsert(ctx context.Context, name string, points []Point) error
	// Search returns up to k hits nearest to vector.
	Search(ctx context.Context, name string, vector []float32, k int) ([]Hit, error)
	// Info returns ErrNotFound when the collection is absent.
	Info(ctx context.Context, name string) (CollectionInfo, error)
	// Drop removes the collection; a missing collection is not an error.
	Drop(ctx context.Context, name string) error
}

// Recreate drops name and creates it again, empty.
func Recreate(ctx context.Context, s Store, name string, dimension int, distance Distance) error {
	if err := s.Drop(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	if err := s.EnsureCollection(ctx, name, dimension, distance); err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", name, err)
	}
	return nil
}
