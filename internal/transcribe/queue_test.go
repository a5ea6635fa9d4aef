package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memStore is an in-memory AudioStore for queue tests. LocalPath
// returns "" so jobs carry raw bytes, the S3 shape.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (m *memStore) Save(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Exists(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

func (m *memStore) Delete(_ context.Context, key string) error { return nil }
func (m *memStore) LocalPath(string) string                    { return "" }
func (m *memStore) Type() string                               { return "s3" }

// scriptProvider returns canned results per attempt.
type scriptProvider struct {
	mu      sync.Mutex
	results []error
	calls   int
	text    string
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Transcribe(ctx context.Context, in Input) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.calls < len(p.results) {
		err = p.results[p.calls]
	}
	p.calls++
	if err != nil {
		return "", err
	}
	return p.text, nil
}

func (p *scriptProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func runJob(t *testing.T, provider Provider, audio []byte) string {
	t.Helper()
	store := newMemStore()
	store.Save(context.Background(), "test.mp3", audio, "audio/mpeg")

	results := make(chan string, 1)
	q := NewQueue(QueueOptions{
		Provider: provider,
		Store:    store,
		Workers:  1,
		Timeout:  5 * time.Second,
		OnResult: func(_ context.Context, _ Job, text string) { results <- text },
		Log:      zerolog.Nop(),
	})
	q.backoff = time.Millisecond
	q.Start()
	defer q.Stop()

	if !q.Enqueue(Job{CallID: 1, AudioKey: "test.mp3"}) {
		t.Fatal("enqueue refused")
	}
	select {
	case text := <-results:
		return text
	case <-time.After(10 * time.Second):
		t.Fatal("no result")
		return ""
	}
}

func bigAudio() []byte { return bytes.Repeat([]byte{0xff}, 2048) }

func TestQueue_RetriesTransportErrors(t *testing.T) {
	p := &scriptProvider{
		results: []error{errors.New("connection refused"), errors.New("connection refused"), nil},
		text:    "engine 5 responding",
	}
	text := runJob(t, p, bigAudio())
	if text != "engine 5 responding" {
		t.Errorf("got %q, want transcription after retries", text)
	}
	if got := p.callCount(); got != 3 {
		t.Errorf("provider called %d times, want 3", got)
	}
}

func TestQueue_PermanentErrorFailsWithoutRetry(t *testing.T) {
	p := &scriptProvider{
		results: []error{Permanent(errors.New("invalid audio"))},
		text:    "should not be reached",
	}
	text := runJob(t, p, bigAudio())
	if text != "" {
		t.Errorf("got %q, want empty transcription", text)
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("provider called %d times, want 1 (no retry)", got)
	}
}

func TestQueue_ExhaustedRetriesCompleteEmpty(t *testing.T) {
	fail := errors.New("connection refused")
	p := &scriptProvider{results: []error{fail, fail, fail, fail}}
	text := runJob(t, p, bigAudio())
	if text != "" {
		t.Errorf("got %q, want empty after exhausted retries", text)
	}
	if got := p.callCount(); got != 3 {
		t.Errorf("provider called %d times, want 3 (initial + 2 retries)", got)
	}
}

func TestQueue_TinyAudioSkipsBackend(t *testing.T) {
	p := &scriptProvider{text: "should not be reached"}
	text := runJob(t, p, []byte("too small"))
	if text != "" {
		t.Errorf("got %q, want empty for sub-1KB audio", text)
	}
	if got := p.callCount(); got != 0 {
		t.Errorf("provider called %d times, want 0", got)
	}
}

func TestQueue_EnqueueRefusesWhenFull(t *testing.T) {
	q := NewQueue(QueueOptions{
		Provider:  &scriptProvider{},
		Store:     newMemStore(),
		Workers:   1,
		QueueSize: 1,
		Timeout:   time.Second,
		Log:       zerolog.Nop(),
	})
	// Not started: nothing drains the channel.
	if !q.Enqueue(Job{CallID: 1}) {
		t.Fatal("first enqueue refused")
	}
	if q.Enqueue(Job{CallID: 2}) {
		t.Error("second enqueue accepted, want refusal when full")
	}
	if q.Stats().Pending != 1 {
		t.Errorf("pending = %d, want 1", q.Stats().Pending)
	}
}
