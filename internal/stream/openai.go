package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/braidhq/braid/internal/logger"
)

// OpenAIConfig configures the OpenAI-compatible streaming client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

// OpenAIStreamer streams responses from an OpenAI-compatible endpoint
// using the go-openai SDK.
type OpenAIStreamer struct {
	client *openai.Client
	model  string
	cfg    OpenAIConfig
}

// NewOpenAIStreamer creates a streamer for the configured endpoint.
func NewOpenAIStreamer(cfg OpenAIConfig) *OpenAIStreamer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &OpenAIStreamer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		cfg:    cfg,
	}
}

// Stream opens a chat completion stream and forwards text deltas as chunks.
// The request's assistant prefix is passed as a partial assistant turn so
// the model continues where the interrupted response left off.
func (s *OpenAIStreamer) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: req.Message},
	}
	if req.AssistantPrefix != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: req.AssistantPrefix,
		})
	}

	stream, err := s.openStream(ctx, messages)
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- Chunk{Done: true}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					// Cancelled by the caller; not a stream failure
					ch <- Chunk{Done: true, Err: ctx.Err()}
					return
				}
				logger.Error("Stream: receive failed for session %s: %v", req.SessionID, err)
				ch <- Chunk{Done: true, Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				select {
				case ch <- Chunk{Type: ChunkTypeText, Text: delta.Content}:
				case <-ctx.Done():
					ch <- Chunk{Done: true, Err: ctx.Err()}
					return
				}
			}
		}
	}()
	return ch, nil
}

// openStream opens the completion stream, retrying connection failures
// with exponential backoff.
func (s *OpenAIStreamer) openStream(ctx context.Context, messages []openai.ChatCompletionMessage) (*openai.ChatCompletionStream, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    s.model,
			Messages: messages,
			Stream:   true,
		})
		if err == nil {
			return stream, nil
		}
		lastErr = err
		logger.Warn("Stream: connection attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}
