package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/transcribe"
)

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(event string, payload any) {
	r.events = append(r.events, event)
}

type memStore struct {
	saved map[string][]byte
}

func (m *memStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[key] = data
	return nil
}

func (m *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) Exists(ctx context.Context, key string) bool {
	_, ok := m.saved[key]
	return ok
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.saved, key)
	return nil
}

func (m *memStore) LocalPath(key string) string { return "" }
func (m *memStore) Type() string                { return "local" }

type memCalls struct {
	nextID int64
	calls  map[int64]*database.Call
}

func (m *memCalls) InsertCall(ctx context.Context, c *database.Call) (int64, error) {
	if m.calls == nil {
		m.calls = make(map[int64]*database.Call)
	}
	m.nextID++
	cp := *c
	cp.ID = m.nextID
	m.calls[m.nextID] = &cp
	return m.nextID, nil
}

func (m *memCalls) InsertAudioBlob(ctx context.Context, transcriptionID int64, data []byte) error {
	return nil
}

func (m *memCalls) UpdateTranscription(ctx context.Context, id int64, text string) error {
	c, ok := m.calls[id]
	if !ok {
		return database.ErrNotFound
	}
	c.Transcription = text
	return nil
}

func (m *memCalls) UpdateLocation(ctx context.Context, id int64, address string, lat, lon float64, transcription string) error {
	c, ok := m.calls[id]
	if !ok {
		return database.ErrNotFound
	}
	c.Address, c.Lat, c.Lon = &address, &lat, &lon
	c.Transcription = transcription
	return nil
}

func (m *memCalls) GetCall(ctx context.Context, id int64) (*database.Call, error) {
	c, ok := m.calls[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// An upload must not reach feed subscribers until its transcription
// lands; only then does the pipeline emit an event.
func TestUploadNotPublishedBeforeTranscription(t *testing.T) {
	pub := &recordingPublisher{}
	calls := &memCalls{}
	p := NewPipeline(Options{
		Config:    &config.Config{},
		DB:        calls,
		Store:     &memStore{},
		Publisher: pub,
		Log:       zerolog.Nop(),
	})
	p.SetQueue(transcribe.NewQueue(transcribe.QueueOptions{QueueSize: 4, Log: zerolog.Nop()}))

	ctx := context.Background()
	id, err := p.HandleUpload(ctx, Upload{
		Talkgroup: "4526",
		Timestamp: time.Unix(1741945613, 0),
		Source:    "567890",
		Audio:     []byte("audio-bytes"),
		Ext:       "mp3",
	})
	if err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("events published at upload time: %v", pub.events)
	}
	if src := calls.calls[id].SourceID; src == nil || *src != 567890 {
		t.Errorf("stored source id = %v, want 567890", src)
	}

	p.OnTranscribed(ctx, transcribe.Job{CallID: id, AudioKey: calls.calls[id].AudioKey}, "Engine 5 responding")
	if len(pub.events) != 1 || pub.events[0] != "transcription" {
		t.Fatalf("events after transcription = %v, want [transcription]", pub.events)
	}
	if got := calls.calls[id].Transcription; got != "Engine 5 responding" {
		t.Errorf("stored transcription = %q, want %q", got, "Engine 5 responding")
	}
}

func TestParseSourceID(t *testing.T) {
	if got := parseSourceID("567890"); got == nil || *got != 567890 {
		t.Errorf("parseSourceID(567890) = %v, want 567890", got)
	}
	if got := parseSourceID(" 42 "); got == nil || *got != 42 {
		t.Errorf("parseSourceID( 42 ) = %v, want 42", got)
	}
	for _, s := range []string{"", "E-5", "12.5", "unit seven"} {
		if got := parseSourceID(s); got != nil {
			t.Errorf("parseSourceID(%q) = %d, want nil", s, *got)
		}
	}
}

func TestLinkifyTranscript(t *testing.T) {
	url := "https://www.google.com/maps?q=40.855100,-73.200700"

	t.Run("verbatim occurrence becomes a link", func(t *testing.T) {
		got := linkifyTranscript(
			"Engine 5 respond to 123 Main St for a structure fire",
			"123 Main St, Smithtown, NY 11787, USA", 40.8551, -73.2007)
		want := "Engine 5 respond to [123 Main St](" + url + ") for a structure fire"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("case-insensitive match keeps original casing", func(t *testing.T) {
		got := linkifyTranscript(
			"respond to 123 MAIN ST now",
			"123 Main St, Smithtown, NY 11787, USA", 40.8551, -73.2007)
		if !strings.Contains(got, "[123 MAIN ST](") {
			t.Errorf("got %q, want linked original casing", got)
		}
	})

	t.Run("no occurrence appends a link line", func(t *testing.T) {
		addr := "123 Main St, Smithtown, NY 11787, USA"
		got := linkifyTranscript("signal 13 at the usual place", addr, 40.8551, -73.2007)
		if !strings.HasSuffix(got, "["+addr+"]("+url+")") {
			t.Errorf("got %q, want appended link for %q", got, addr)
		}
	})
}

func TestContentTypeFor(t *testing.T) {
	for ext, want := range map[string]string{
		"mp3":  "audio/mpeg",
		".m4a": "audio/mp4",
		"wav":  "audio/wav",
		"":     "audio/mpeg",
	} {
		if got := contentTypeFor(ext); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", ext, got, want)
		}
	}
}
