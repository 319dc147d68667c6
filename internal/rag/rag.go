package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/vectorstore"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// Ledger is the durable record of ingested filenames.
type Ledger interface {
	Record(ctx context.Context, filename string, chunkCount int) error
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type Options struct {
	Collection     string
	Dimension      int
	Temperature    float64
	DefaultChunks  int
	MaxChunksLimit int
	PreviewChars   int
}

// RAG ingests PDFs and answers questions over them. One instance is shared by all requests.
type RAG struct {
	extractor parser.Extractor
	chunker   *parser.Chunker
	embedder  embeddings.Embedder
	store     vectorstore.Store
	ledger    Ledger
	llm       llms.Model
	opts      Options

	// filenames seen by this process; read only when the ledger fails
	seen *filenameCache
}

func NewRAG(extractor parser.Extractor, chunker *parser.Chunker, embedder embeddings.Embedder,
	store vectorstore.Store, ledger Ledger, llm llms.Model, opts Options) *RAG {
	if opts.DefaultChunks <= 0 {
		opts.DefaultChunks = 3
	}
	if opts.MaxChunksLimit <= 0 {
		opts.MaxChunksLimit = 20
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 200
	}
	return &RAG{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		ledger:    ledger,
		llm:       llm,
		opts:      opts,
		seen:      newFilenameCache(),
	}
}

func (r *RAG) CollectionName() string { return r.opts.Collection }

// Init creates the collection if it is absent.
func (r *RAG) Init(ctx context.Context) error {
	return r.store.EnsureCollection(ctx, r.opts.Collection, r.opts.Dimension, vectorstore.Cosine)
}

// ProcessPDF extracts, chunks, embeds and stores one PDF. Nothing is embedded
// or stored when the document has no text.
func (r *RAG) ProcessPDF(ctx context.Context, filename string, content []byte) (*models.UploadResult, error) {
	text, err := r.extractor.Extract(content)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", filename, parser.ErrEmptyText)
	}

	chunks, err := r.buildChunks(filename, text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, parser.ErrEmptyText)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", filename, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:       c.DocumentID,
			Vector:   vectors[i],
			Content:  c.Content,
			Metadata: chunkMetadata(c),
		}
	}
	if err := r.store.Upsert(ctx, r.opts.Collection, points); err != nil {
		return nil, fmt.Errorf("failed to store chunks of %s: %w", filename, err)
	}

	// the vector write is not rolled back if the ledger write fails
	if err := r.ledger.Record(ctx, filename, len(chunks)); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Error recording document in ledger")
	}
	r.seen.Add(filename)

	log.Info().Str("filename", filename).Int("chunks", len(chunks)).Msg("Stored document")
	return &models.UploadResult{Filename: filename, ChunksCreated: len(chunks)}, nil
}

func (r *RAG) buildChunks(filename, text string) ([]models.Chunk, error) {
	parts, err := r.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", filename, err)
	}
	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, models.Chunk{
			Content:     part,
			Source:      filename,
			ChunkID:     i,
			TotalChunks: len(parts),
			DocumentID:  id,
		})
	}
	return chunks, nil
}

func chunkMetadata(c models.Chunk) map[string]any {
	return map[string]any{
		models.MetaSource:      c.Source,
		models.MetaChunkID:     c.ChunkID,
		models.MetaTotalChunks: c.TotalChunks,
		models.MetaDocumentID:  c.DocumentID,
	}
}

type QueryOptions struct {
	MaxChunks int
	HTML      bool
}

// Query answers question from the top chunks. Any failure aborts the whole query.
func (r *RAG) Query(ctx context.Context, question string, opts QueryOptions) (*models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	k := r.chunkLimit(opts.MaxChunks)

	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := r.store.Search(ctx, r.opts.Collection, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	contextParts := make([]string, len(hits))
	for i, hit := range hits {
		contextParts[i] = hit.Content
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf(models.QueryPromptTemplate, strings.Join(contextParts, models.ContextSeparator), question)),
	}

	answer, err := llmservice.GenerateContent(ctx, r.llm, r.opts.Temperature, messages)
	if err != nil {
		return nil, err
	}

	res := &models.Answer{
		Answer:  answer,
		Sources: make([]models.Source, len(hits)),
	}
	for i, hit := range hits {
		res.Sources[i] = models.Source{
			Source:         metaString(hit.Metadata, models.MetaSource, "Unknown"),
			ChunkID:        metaInt(hit.Metadata, models.MetaChunkID),
			ContentPreview: preview(hit.Content, r.opts.PreviewChars),
			FullContent:    hit.Content,
		}
	}
	if opts.HTML {
		html, err := RenderMarkdown(answer)
		if err != nil {
			return nil, fmt.Errorf("failed to render answer: %w", err)
		}
		res.AnswerHTML = html
	}

	log.Debug().Str("question", question).Int("sources", len(hits)).Msg("Answered question")
	return res, nil
}

func (r *RAG) chunkLimit(requested int) int {
	if requested <= 0 {
		return r.opts.DefaultChunks
	}
	return min(requested, r.opts.MaxChunksLimit)
}

// preview is the first n characters of text followed by an ellipsis.
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text + models.PreviewEllipsis
	}
	return string([]rune(text)[:n]) + models.PreviewEllipsis
}

// Documents lists ingested filenames from the ledger, falling back to the
// filenames seen by this process when the ledger cannot be read.
func (r *RAG) Documents(ctx context.Context) (*models.DocumentsInfo, error) {
	info := &models.DocumentsInfo{CollectionName: r.opts.Collection}

	names, err := r.ledger.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Error reading ledger, using in-memory filenames")
		names = r.seen.List()
		info.FromCache = true
	}
	if names == nil {
		names = []string{}
	}
	info.Documents = names

	collection, err := r.store.Info(ctx, r.opts.Collection)
	if err != nil {
		log.Warn().Err(err).Str("collection", r.opts.Collection).Msg("Error reading collection info")
	} else {
		info.TotalChunks = collection.PointsCount
	}
	return info, nil
}

// Clear drops and recreates the empty collection and forgets every filename.
func (r *RAG) Clear(ctx context.Context) error {
	if err := vectorstore.Recreate(ctx, r.store, r.opts.Collection, r.opts.Dimension, vectorstore.Cosine); err != nil {
		return err
	}
	if err := r.ledger.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Error clearing ledger")
	}
	r.seen.Clear()
	log.Info().Str("collection", r.opts.Collection).Msg("Cleared all documents")
	return nil
}

// Health reports whether the collection is reachable and how many chunks it holds.
func (r *RAG) Health(ctx context.Context) (models.Health, error) {
	info, err := r.store.Info(ctx, r.opts.Collection)
	if err != nil {
		return models.Health{}, err
	}
	return models.Health{Connected: true, DocumentsStored: info.PointsCount}, nil
}
