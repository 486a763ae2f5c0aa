package stream

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Script is a canned response for a scripted streamer: the chunks to emit,
// the delay between them, and an optional error to fail with mid-stream.
type Script struct {
	Chunks     []string
	ChunkDelay time.Duration
	// FailAfter injects Err after emitting that many chunks. Zero with a
	// non-nil Err fails before the first chunk.
	FailAfter int
	Err       error
}

// ScriptedStreamer replays canned responses. It is used by tests and the
// demo command. Responses are matched per session; sessions without a
// script echo the message back word by word.
type ScriptedStreamer struct {
	mu       sync.Mutex
	scripts  map[string][]Script // per-session FIFO of scripts
	fallback Script
	requests []Request
}

// NewScriptedStreamer creates a scripted streamer with an echoing default.
func NewScriptedStreamer() *ScriptedStreamer {
	return &ScriptedStreamer{
		scripts: make(map[string][]Script),
	}
}

// AddScript queues a response script for a session. Scripts are consumed
// in order, one per Stream call.
func (s *ScriptedStreamer) AddScript(sessionID string, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[sessionID] = append(s.scripts[sessionID], script)
}

// SetFallback sets the script used when a session has none queued.
func (s *ScriptedStreamer) SetFallback(script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = script
}

// Requests returns a copy of all requests seen, in order.
func (s *ScriptedStreamer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := make([]Request, len(s.requests))
	copy(reqs, s.requests)
	return reqs
}

func (s *ScriptedStreamer) next(req Request) Script {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	if queue := s.scripts[req.SessionID]; len(queue) > 0 {
		script := queue[0]
		s.scripts[req.SessionID] = queue[1:]
		return script
	}
	if len(s.fallback.Chunks) > 0 || s.fallback.Err != nil {
		return s.fallback
	}
	// Echo the message back word by word
	words := strings.Fields(req.Message)
	chunks := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, w)
	}
	return Script{Chunks: chunks}
}

func (s *ScriptedStreamer) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	script := s.next(req)

	ch := make(chan Chunk)
	go func() {
		defer close(ch)

		if script.Err != nil && script.FailAfter == 0 {
			ch <- Chunk{Done: true, Err: script.Err}
			return
		}

		for i, text := range script.Chunks {
			if script.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					ch <- Chunk{Done: true, Err: ctx.Err()}
					return
				case <-time.After(script.ChunkDelay):
				}
			}
			select {
			case ch <- Chunk{Type: ChunkTypeText, Text: text}:
			case <-ctx.Done():
				ch <- Chunk{Done: true, Err: ctx.Err()}
				return
			}
			if script.Err != nil && i+1 == script.FailAfter {
				ch <- Chunk{Done: true, Err: script.Err}
				return
			}
		}
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}
