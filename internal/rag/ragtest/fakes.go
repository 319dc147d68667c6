// Package ragtest provides in-process stand-ins for the remote services the
// RAG pipeline talks to.
package ragtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms"
)

var ErrUnavailable = errors.New("service unavailable")

// WordEmbedder gives every distinct word its own dimension, in order of first
// sight, so texts sharing words get similar vectors. Words only share a
// dimension once the vocabulary outgrows Dim.
type WordEmbedder struct {
	Dim int
	Err error

	documentCalls atomic.Int64
	queryCalls    atomic.Int64

	mu    sync.Mutex
	vocab map[string]int
}

func (e *WordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.documentCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *WordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queryCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

func (e *WordEmbedder) DocumentCalls() int { return int(e.documentCalls.Load()) }
func (e *WordEmbedder) QueryCalls() int    { return int(e.queryCalls.Load()) }

func (e *WordEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dim)
	e.mu.Lock()
	if e.vocab == nil {
		e.vocab = make(map[string]int)
	}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		idx, ok := e.vocab[w]
		if !ok {
			idx = len(e.vocab)
			e.vocab[w] = idx
		}
		v[idx%e.Dim]++
	}
	e.mu.Unlock()
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// LLM returns a canned answer and records every prompt it receives.
type LLM struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts [][]llms.MessageContent
}

func (m *LLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, messages)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.Answer}}}, nil
}

func (m *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *LLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// LastPrompt joins the text parts of the most recent call.
func (m *LLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range m.prompts[len(m.prompts)-1] {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// TextExtractor treats the uploaded bytes as already-extracted text.
type TextExtractor struct {
	Err error
}

func (x TextExtractor) Extract(content []byte) (string, error) {
	if x.Err != nil {
		return "", x.Err
	}
	return string(content), nil
}

// BrokenLedger fails every call.
type BrokenLedger struct{}

func (BrokenLedger) Record(context.Context, string, int) error { return ErrUnavailable }
func (BrokenLedger) List(context.Context) ([]string, error)   { return nil, ErrUnavailable }
func (BrokenLedger) Clear(context.Context) error               { return ErrUnavailable }
