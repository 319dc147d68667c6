package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/vectorstore"
)

// NewVectorStore opens the configured vector store backend. The returned
// function releases its connections.
func NewVectorStore(ctx context.Context, cfg *config.VectorStoreConfig) (vectorstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case config.VectorStoreQdrant:
		return vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		}), noop, nil
	case config.VectorStoreChromem:
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, nil, err
		}
		store, err := vectorstore.NewChromem(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.VectorStorePGVector:
		store, err := vectorstore.NewPGVector(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector store: %s", cfg.Type)
	}
}

// NewFromConfig builds every component, opens the ledger and ensures the
// collection exists. The returned close function releases the ledger and
// the vector store.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*RAG, func() error, error) {
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embedding.NewEmbedderFromConfig(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	llm, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := NewVectorStore(ctx, &cfg.VectorStore)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := db.OpenLedger(ctx, &cfg.Ledger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	closeAll := func() error {
		return errors.Join(ledger.Close(), closeStore())
	}

	r := NewRAG(parser.PDFExtractor{}, chunker, embedder, store, ledger, llm, Options{
		Collection:     cfg.VectorStore.Collection,
		Dimension:      cfg.EmbedLLM.Dimension,
		Temperature:    cfg.ChatLLM.Temperature,
		DefaultChunks:  cfg.RAG.DefaultChunks,
		MaxChunksLimit: cfg.RAG.MaxChunksLimit,
		PreviewChars:   cfg.RAG.PreviewChars,
	})
	if err := r.Init(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to initialize collection %s: %w", cfg.VectorStore.Collection, err)
	}

	log.Info().
		Str("vector_store", cfg.VectorStore.Type).
		Str("collection", cfg.VectorStore.Collection).
		Str("ledger", cfg.Ledger.Driver).
		Msg("RAG service ready")
	return r, closeAll, nil
}
