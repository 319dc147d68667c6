package parser

import (
	"fmt"
	"iter"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000 // characters
	DefaultChunkOverlap = 200  // characters
)

// Chunker splits text into fixed-size windows that overlap their neighbours.
type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.TextSplitter
}

// NewChunker validates the window configuration. Zero values fall back to the defaults.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d): %d", size, overlap)
	}

	return &Chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks yields the chunks of text in source order. A splitter failure is
// yielded once as a non-nil error. The sequence can be ranged over any number
// of times.
func (c *Chunker) Chunks(text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		parts, err := c.splitter.SplitText(text)
		if err != nil {
			yield("", fmt.Errorf("failed to split text: %w", err))
			return
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if !yield(part, nil) {
				return
			}
		}
	}
}

// Split materialises Chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	var chunks []string
	for chunk, err := range c.Chunks(text) {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
