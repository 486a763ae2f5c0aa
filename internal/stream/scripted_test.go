package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// collect drains a chunk channel, returning the accumulated text and the
// final chunk.
func collect(t *testing.T, ch <-chan Chunk) (string, Chunk) {
	t.Helper()
	var sb strings.Builder
	var last Chunk
	for chunk := range ch {
		if chunk.Type == ChunkTypeText {
			sb.WriteString(chunk.Text)
		}
		last = chunk
	}
	if !last.Done {
		t.Fatal("stream closed without a Done chunk")
	}
	return sb.String(), last
}

func TestScriptedStreamer_Script(t *testing.T) {
	s := NewScriptedStreamer()
	s.AddScript("sess", Script{Chunks: []string{"Hello", ", ", "world"}})

	ch, err := s.Stream(context.Background(), Request{SessionID: "sess", Message: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, last := collect(t, ch)
	if text != "Hello, world" {
		t.Errorf("streamed text = %q, want %q", text, "Hello, world")
	}
	if last.Err != nil {
		t.Errorf("final chunk err = %v, want nil", last.Err)
	}
}

func TestScriptedStreamer_ScriptsConsumeInOrder(t *testing.T) {
	s := NewScriptedStreamer()
	s.AddScript("sess", Script{Chunks: []string{"first"}})
	s.AddScript("sess", Script{Chunks: []string{"second"}})

	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		ch, err := s.Stream(ctx, Request{SessionID: "sess"})
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		text, _ := collect(t, ch)
		if text != want {
			t.Errorf("streamed text = %q, want %q", text, want)
		}
	}
}

func TestScriptedStreamer_EchoDefault(t *testing.T) {
	s := NewScriptedStreamer()

	ch, err := s.Stream(context.Background(), Request{SessionID: "sess", Message: "echo this back"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, _ := collect(t, ch)
	if text != "echo this back" {
		t.Errorf("echoed text = %q, want %q", text, "echo this back")
	}
}

func TestScriptedStreamer_Fallback(t *testing.T) {
	s := NewScriptedStreamer()
	s.SetFallback(Script{Chunks: []string{"canned"}})

	ch, err := s.Stream(context.Background(), Request{SessionID: "anything", Message: "ignored"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, _ := collect(t, ch)
	if text != "canned" {
		t.Errorf("fallback text = %q, want %q", text, "canned")
	}
}

func TestScriptedStreamer_FailAfter(t *testing.T) {
	wantErr := errors.New("stream broke")
	s := NewScriptedStreamer()
	s.AddScript("sess", Script{Chunks: []string{"one", "two", "three"}, FailAfter: 2, Err: wantErr})

	ch, err := s.Stream(context.Background(), Request{SessionID: "sess"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, last := collect(t, ch)
	if text != "onetwo" {
		t.Errorf("streamed text = %q, want chunks before the failure", text)
	}
	if !errors.Is(last.Err, wantErr) {
		t.Errorf("final chunk err = %v, want %v", last.Err, wantErr)
	}
}

func TestScriptedStreamer_FailImmediately(t *testing.T) {
	wantErr := errors.New("refused")
	s := NewScriptedStreamer()
	s.AddScript("sess", Script{Err: wantErr})

	ch, err := s.Stream(context.Background(), Request{SessionID: "sess"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, last := collect(t, ch)
	if text != "" {
		t.Errorf("streamed text = %q, want none", text)
	}
	if !errors.Is(last.Err, wantErr) {
		t.Errorf("final chunk err = %v, want %v", last.Err, wantErr)
	}
}

func TestScriptedStreamer_ContextCancel(t *testing.T) {
	s := NewScriptedStreamer()
	s.AddScript("sess", Script{Chunks: []string{"a", "b", "c", "d"}, ChunkDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Stream(ctx, Request{SessionID: "sess"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	// Take one chunk, then cancel mid-stream
	<-ch
	cancel()

	var last Chunk
	for chunk := range ch {
		last = chunk
	}
	if !last.Done {
		t.Fatal("stream should end with a Done chunk after cancel")
	}
	if !errors.Is(last.Err, context.Canceled) {
		t.Errorf("final chunk err = %v, want context.Canceled", last.Err)
	}
}

func TestScriptedStreamer_RecordsRequests(t *testing.T) {
	s := NewScriptedStreamer()

	ctx := context.Background()
	ch, _ := s.Stream(ctx, Request{SessionID: "a", Message: "first"})
	collect(t, ch)
	ch, _ = s.Stream(ctx, Request{SessionID: "b", Message: "second", AssistantPrefix: "partial text"})
	collect(t, ch)

	reqs := s.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Requests() = %d, want 2", len(reqs))
	}
	if reqs[0].SessionID != "a" || reqs[1].SessionID != "b" {
		t.Errorf("request order = %s, %s", reqs[0].SessionID, reqs[1].SessionID)
	}
	if reqs[1].AssistantPrefix != "partial text" {
		t.Errorf("AssistantPrefix = %q, want preserved", reqs[1].AssistantPrefix)
	}
}
