package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// undefined_table
const pgUndefinedTable = "42P01"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PGVector stores each collection as a Postgres table with a pgvector
// column. Only cosine distance is supported.
type PGVector struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGVector)(nil)

func NewPGVector(ctx context.Context, dsn string) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PGVector{pool: pool}, nil
}

func (p *PGVector) Close() error {
	p.pool.Close()
	return nil
}

func table(name string) (string, error) {
	if !tableName.MatchString(name) {
		return "", fmt.Errorf("invalid collection name for postgres: %q", name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// mapError turns a missing table into ErrNotFound.
func mapError(name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("pgvector collection %s: %w", name, ErrNotFound)
	}
	return err
}

func (p *PGVector) EnsureCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	if distance != Cosine {
		return fmt.Errorf("pgvector store only supports cosine distance, got %s", distance)
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	tbl, err := table(name)
	if err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL
		)`, tbl, dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	log.Debug().Str("collection", name).Int("dimension", dimension).Msg("Ensured pgvector table")
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tbl, err := table(name)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, tbl)

	batch := &pgx.Batch{}
	for _, pt := range points {
		meta, err := json.Marshal(pt.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", pt.ID, err)
		}
		batch.Queue(stmt, pt.ID, pt.Content, meta, pgvector.NewVector(pt.Vector))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(name, err)
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, name string, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	tbl, err := table(name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, tbl)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, mapError(name, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit   Hit
			meta  []byte
			score float64
		)
		if err := rows.Scan(&hit.ID, &hit.Content, &meta, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hit.Score = float32(score)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", hit.ID, err)
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(name, err)
	}
	return hits, nil
}

func (p *PGVector) Info(ctx context.Context, name string) (CollectionInfo, error) {
	tbl, err := table(name)
	if err != nil {
		return CollectionInfo{}, err
	}

	var count int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+tbl).Scan(&count); err != nil {
		return CollectionInfo{}, mapError(name, err)
	}
	return CollectionInfo{Name: name, PointsCount: count}, nil
}

func (p *PGVector) Drop(ctx context.Context, name string) error {
	tbl, err := table(name)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+tbl); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}
