// Package stream defines the model-streaming abstraction the worker
// consumes. A Streamer turns a request into a channel of chunks; the
// worker decides between chunks whether to keep going or preempt.
package stream

import "context"

// ChunkType identifies the kind of a streamed chunk.
type ChunkType int

const (
	// ChunkTypeText is a fragment of assistant response text.
	ChunkTypeText ChunkType = iota
	// ChunkTypeToolUse reports a tool invocation by the model.
	ChunkTypeToolUse
)

// Chunk is one streamed fragment of a response. The final chunk has Done
// set; a failed stream carries Err on its final chunk.
type Chunk struct {
	Type      ChunkType
	Text      string
	ToolName  string
	ToolInput string
	Err       error
	Done      bool
}

// Request describes one response to generate.
type Request struct {
	SessionID string
	Message   string
	// AssistantPrefix is a previously streamed partial response. When set,
	// the model continues from it and the prefix is NOT re-emitted; callers
	// already hold that text.
	AssistantPrefix string
}

// Streamer produces a streaming response for a request. The returned
// channel is closed after the final chunk. Cancelling the context stops
// the stream; the channel still closes.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
