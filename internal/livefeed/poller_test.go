package livefeed

import (
	"testing"
	"time"

	"github.com/snarg/scanmap/internal/database"
)

func TestPlanBatch(t *testing.T) {
	now := time.Unix(10_000, 0)
	old := now.Add(-30 * time.Second).Unix()
	fresh := now.Add(-2 * time.Second).Unix()

	call := func(id int64, ts int64, text string) database.Call {
		return database.Call{ID: id, Timestamp: ts, Transcription: text}
	}

	t.Run("transcribed calls emit and advance", func(t *testing.T) {
		emits, wm := planBatch([]database.Call{
			call(1, old, "engine responding"),
			call(2, old, "second call"),
		}, now)
		if len(emits) != 2 || wm != 2 {
			t.Fatalf("got %d emits, watermark %d; want 2, 2", len(emits), wm)
		}
		if emits[0].pending || emits[1].pending {
			t.Error("transcribed calls marked pending")
		}
	})

	t.Run("fresh untranscribed call halts the batch", func(t *testing.T) {
		emits, wm := planBatch([]database.Call{
			call(1, old, "done"),
			call(2, fresh, ""),
			call(3, old, "behind the pending one"),
		}, now)
		if len(emits) != 1 || wm != 1 {
			t.Fatalf("got %d emits, watermark %d; want 1, 1", len(emits), wm)
		}
	})

	t.Run("stale untranscribed call emits placeholder and advances", func(t *testing.T) {
		emits, wm := planBatch([]database.Call{
			call(1, old, ""),
			call(2, old, "after placeholder"),
		}, now)
		if len(emits) != 2 || wm != 2 {
			t.Fatalf("got %d emits, watermark %d; want 2, 2", len(emits), wm)
		}
		if !emits[0].pending {
			t.Error("stale call not marked pending")
		}
		if emits[1].pending {
			t.Error("transcribed call marked pending")
		}
	})

	t.Run("empty batch keeps watermark", func(t *testing.T) {
		emits, wm := planBatch(nil, now)
		if len(emits) != 0 || wm != 0 {
			t.Fatalf("got %d emits, watermark %d; want 0, 0", len(emits), wm)
		}
	})
}

// The watermark never passes an id that was not emitted, so nothing is
// ever emitted twice with a real transcription.
func TestPlanBatchWatermarkMonotonic(t *testing.T) {
	now := time.Unix(10_000, 0)
	rows := []database.Call{
		{ID: 5, Timestamp: now.Unix() - 60, Transcription: "a"},
		{ID: 6, Timestamp: now.Unix() - 1, Transcription: ""},
		{ID: 7, Timestamp: now.Unix() - 60, Transcription: "b"},
	}
	_, wm := planBatch(rows, now)
	if wm >= 6 {
		t.Fatalf("watermark %d passed unemitted id 6", wm)
	}

	// Once 6 transcribes, the next poll emits 6 and 7 exactly once.
	rows[1].Transcription = "now done"
	emits, wm := planBatch(rows[1:], now)
	if len(emits) != 2 || wm != 7 {
		t.Fatalf("got %d emits, watermark %d; want 2, 7", len(emits), wm)
	}
}

func TestCoerceCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"FIRE", "FIRE"},
		{"fire", "FIRE"},
		{" Medical.", "MEDICAL"},
		{"The category is MVA", "MVA"},
		{"structure collapse", "OTHER"},
		{"", "OTHER"},
	}
	for _, tt := range tests {
		if got := CoerceCategory(tt.in); got != tt.want {
			t.Errorf("CoerceCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(16)
	ch, cancel := bus.Subscribe(Filter{Types: []string{"newCall"}})
	defer cancel()

	bus.Publish("liveFeedUpdate", map[string]any{"id": 1})
	bus.Publish("newCall", map[string]any{"id": 2})

	select {
	case e := <-ch:
		if e.Type != "newCall" {
			t.Errorf("got %q, want filtered newCall", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestEventBusReplay(t *testing.T) {
	bus := NewEventBus(16)
	bus.Publish("newCall", map[string]any{"id": 1})
	bus.Publish("newCall", map[string]any{"id": 2})

	all := bus.ReplaySince("", Filter{})
	if len(all) != 2 {
		t.Fatalf("replay all: got %d events, want 2", len(all))
	}
	since := bus.ReplaySince(all[0].ID, Filter{})
	if len(since) != 1 || since[0].ID != all[1].ID {
		t.Fatalf("replay since first: got %d events", len(since))
	}
}
