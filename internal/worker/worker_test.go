package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/braidhq/braid/internal/queue"
	"github.com/braidhq/braid/internal/stream"
)

type partialCall struct {
	sessionID string
	message   string
	partial   string
}

type completeCall struct {
	sessionID string
	message   string
	response  string
}

// hookRecorder records hook calls and signals them on channels so tests
// can wait without polling.
type hookRecorder struct {
	mu        sync.Mutex
	partials  []partialCall
	completes []completeCall
	errs      []error

	partialCh  chan partialCall
	completeCh chan completeCall
	errCh      chan error
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{
		partialCh:  make(chan partialCall, 16),
		completeCh: make(chan completeCall, 16),
		errCh:      make(chan error, 16),
	}
}

func (h *hookRecorder) OnPartial(sessionID, message, partial string) {
	h.mu.Lock()
	call := partialCall{sessionID, message, partial}
	h.partials = append(h.partials, call)
	h.mu.Unlock()
	h.partialCh <- call
}

func (h *hookRecorder) OnComplete(sessionID, message, response string) {
	h.mu.Lock()
	call := completeCall{sessionID, message, response}
	h.completes = append(h.completes, call)
	h.mu.Unlock()
	h.completeCh <- call
}

func (h *hookRecorder) OnError(sessionID string, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.errCh <- err
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestWorker_CompletesMessage(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	s.AddScript("sess", stream.Script{Chunks: []string{"Hello, ", "world"}})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	events := w.Subscribe("sess")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "sess", Text: "greet", Priority: queue.PriorityHigh})

	call := waitFor(t, hooks.completeCh, "OnComplete")
	if call.response != "Hello, world" {
		t.Errorf("OnComplete response = %q, want %q", call.response, "Hello, world")
	}
	if call.message != "greet" {
		t.Errorf("OnComplete message = %q, want %q", call.message, "greet")
	}

	// Subscriber sees the chunks then the completion
	var chunks []string
	for {
		ev := <-events
		if ev.Type == EventComplete {
			if ev.Text != "Hello, world" {
				t.Errorf("EventComplete text = %q, want full response", ev.Text)
			}
			break
		}
		if ev.Type == EventChunk {
			chunks = append(chunks, ev.Text)
		}
	}
	if strings.Join(chunks, "") != "Hello, world" {
		t.Errorf("chunk events = %v, want the streamed text", chunks)
	}
}

func TestWorker_PreemptsLowForHigh(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	// Slow background response, then the script consumed by its resumption
	s.AddScript("bg", stream.Script{
		Chunks:     []string{"The ", "quick ", "brown ", "fox ", "jumps ", "over"},
		ChunkDelay: 50 * time.Millisecond,
	})
	s.AddScript("bg", stream.Script{Chunks: []string{"...and lands"}})
	s.AddScript("fg", stream.Script{Chunks: []string{"done"}})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	bgEvents := w.Subscribe("bg")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "bg", Text: "slow work", Priority: queue.PriorityLow})

	// Let a couple of chunks stream before the foreground arrives
	for i := 0; i < 2; i++ {
		ev := <-bgEvents
		if ev.Type != EventChunk {
			t.Fatalf("event %d type = %d, want chunk", i, ev.Type)
		}
	}
	q.Enqueue(queue.Message{SessionID: "fg", Text: "urgent", Priority: queue.PriorityHigh})

	// The background stream yields and its partial is persisted
	partial := waitFor(t, hooks.partialCh, "OnPartial")
	if partial.sessionID != "bg" {
		t.Fatalf("OnPartial session = %q, want bg", partial.sessionID)
	}
	if partial.partial == "" || !strings.HasPrefix("The quick brown fox jumps over", partial.partial) {
		t.Errorf("OnPartial partial = %q, want a prefix of the streamed text", partial.partial)
	}
	if partial.message != "slow work" {
		t.Errorf("OnPartial message = %q, want original input", partial.message)
	}

	// Foreground completes first, then the background resumes and finishes
	first := waitFor(t, hooks.completeCh, "foreground OnComplete")
	if first.sessionID != "fg" {
		t.Fatalf("first completion = %q, want fg before the resumed bg", first.sessionID)
	}
	second := waitFor(t, hooks.completeCh, "background OnComplete")
	if second.sessionID != "bg" {
		t.Fatalf("second completion = %q, want bg", second.sessionID)
	}

	// The final response reads as one stream: persisted partial + resumed text
	if !strings.HasPrefix(second.response, partial.partial) {
		t.Errorf("resumed response %q should start with the partial %q", second.response, partial.partial)
	}
	if !strings.HasSuffix(second.response, "...and lands") {
		t.Errorf("resumed response %q should end with the resumed text", second.response)
	}

	// The resumed request carried the partial as an assistant prefix
	var resumed *stream.Request
	for _, req := range s.Requests() {
		if req.SessionID == "bg" && req.AssistantPrefix != "" {
			r := req
			resumed = &r
		}
	}
	if resumed == nil {
		t.Fatal("no resumed request with an assistant prefix was issued")
	}
	if resumed.AssistantPrefix != partial.partial {
		t.Errorf("AssistantPrefix = %q, want the persisted partial %q", resumed.AssistantPrefix, partial.partial)
	}
	if resumed.Message != "slow work" {
		t.Errorf("resumed message = %q, want original input", resumed.Message)
	}
}

func TestWorker_InterruptedEventEmitted(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	s.AddScript("bg", stream.Script{Chunks: []string{"a", "b", "c", "d"}, ChunkDelay: 30 * time.Millisecond})
	s.AddScript("bg", stream.Script{Chunks: []string{"rest"}})
	s.AddScript("fg", stream.Script{Chunks: []string{"ok"}})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	bgEvents := w.Subscribe("bg")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "bg", Text: "bg", Priority: queue.PriorityLow})
	<-bgEvents // first chunk
	q.Enqueue(queue.Message{SessionID: "fg", Text: "fg", Priority: queue.PriorityHigh})

	sawInterrupted := false
	for !sawInterrupted {
		select {
		case ev := <-bgEvents:
			if ev.Type == EventInterrupted {
				sawInterrupted = true
			}
			if ev.Type == EventComplete {
				t.Fatal("background completed without an interrupted event")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for EventInterrupted")
		}
	}

	// And the session still completes afterwards
	for {
		call := waitFor(t, hooks.completeCh, "completions")
		if call.sessionID == "bg" {
			return
		}
	}
}

func TestWorker_HighPriorityNotPreempted(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	s.AddScript("fg-1", stream.Script{Chunks: []string{"one ", "two ", "three"}, ChunkDelay: 20 * time.Millisecond})
	s.AddScript("fg-2", stream.Script{Chunks: []string{"after"}})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	events := w.Subscribe("fg-1")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "fg-1", Text: "first", Priority: queue.PriorityHigh})
	<-events // first chunk is out, fg-1 is in flight
	q.Enqueue(queue.Message{SessionID: "fg-2", Text: "second", Priority: queue.PriorityHigh})

	call := waitFor(t, hooks.completeCh, "first completion")
	if call.sessionID != "fg-1" {
		t.Errorf("first completion = %q; a high-priority stream must run to completion", call.sessionID)
	}
	if call.response != "one two three" {
		t.Errorf("response = %q, want the full text", call.response)
	}

	hooks.mu.Lock()
	partials := len(hooks.partials)
	hooks.mu.Unlock()
	if partials != 0 {
		t.Errorf("OnPartial called %d times, want 0", partials)
	}
}

func TestWorker_StreamErrorDiscardsPartial(t *testing.T) {
	q := queue.New()
	wantErr := errors.New("connection reset")
	s := stream.NewScriptedStreamer()
	s.AddScript("sess", stream.Script{Chunks: []string{"partial ", "text"}, FailAfter: 2, Err: wantErr})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	events := w.Subscribe("sess")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "sess", Text: "doomed", Priority: queue.PriorityHigh})

	err := waitFor(t, hooks.errCh, "OnError")
	if !errors.Is(err, wantErr) {
		t.Errorf("OnError err = %v, want %v", err, wantErr)
	}

	hooks.mu.Lock()
	partials, completes := len(hooks.partials), len(hooks.completes)
	hooks.mu.Unlock()
	if partials != 0 {
		t.Error("OnPartial should not be called for a failed stream")
	}
	if completes != 0 {
		t.Error("OnComplete should not be called for a failed stream")
	}

	// Subscriber receives the error event
	for {
		select {
		case ev := <-events:
			if ev.Type == EventError {
				if !errors.Is(ev.Err, wantErr) {
					t.Errorf("EventError err = %v, want %v", ev.Err, wantErr)
				}
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for EventError")
		}
	}
}

func TestWorker_CancelSession(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	s.AddScript("sess", stream.Script{Chunks: []string{"a", "b", "c", "d", "e"}, ChunkDelay: 40 * time.Millisecond})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	events := w.Subscribe("sess")
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{SessionID: "sess", Text: "long", Priority: queue.PriorityLow})
	<-events // in flight

	if !w.Busy("sess") {
		t.Error("Busy() = false for an in-flight session")
	}
	w.CancelSession("sess")

	// Cancellation is an error outcome, not a preemption
	waitFor(t, hooks.errCh, "OnError after cancel")
	hooks.mu.Lock()
	partials := len(hooks.partials)
	hooks.mu.Unlock()
	if partials != 0 {
		t.Error("OnPartial should not be called for a cancelled stream")
	}
}

func TestWorker_ResumePrefixPrependedOnCleanCompletion(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	s.AddScript("sess", stream.Script{Chunks: []string{"second half"}})
	hooks := newHookRecorder()

	w := New(q, s, hooks)
	w.Start(context.Background())
	defer w.Stop()

	q.Enqueue(queue.Message{
		SessionID:    "sess",
		Text:         "original input",
		Priority:     queue.PriorityLow,
		ResumePrefix: "first half, ",
	})

	call := waitFor(t, hooks.completeCh, "OnComplete")
	if call.response != "first half, second half" {
		t.Errorf("response = %q, want resume prefix prepended", call.response)
	}
}

func TestWorker_Unsubscribe(t *testing.T) {
	q := queue.New()
	s := stream.NewScriptedStreamer()
	hooks := newHookRecorder()
	w := New(q, s, hooks)

	ch := w.Subscribe("sess")
	w.Unsubscribe("sess")

	// Channel is closed; receives return immediately
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Unsubscribe")
	}
}
