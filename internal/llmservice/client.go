package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-rag/internal/config"
)

var ErrEmptyCompletion = errors.New("chat completion returned no choices")

// NewChatModel builds an OpenAI-compatible chat model for the configured endpoint.
func NewChatModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]any{
		"base_url":    llmConfig.BaseURL,
		"model":       llmConfig.Model,
		"temperature": llmConfig.Temperature,
	}).Msg("Creating chat model")

	opts := []openai.Option{
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	}
	if llmConfig.TimeoutSecs > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: time.Duration(llmConfig.TimeoutSecs) * time.Second}))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	return llm, nil
}

// GenerateContent sends messages to the model once and returns the first choice's text.
func GenerateContent(ctx context.Context, llm llms.Model, temperature float64, messages []llms.MessageContent) (string, error) {
	res, err := llm.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return res.Choices[0].Content, nil
}
