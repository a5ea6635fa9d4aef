package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/snarg/scanmap/internal/database"
)

func TestFormatTranscripts(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	calls := []database.Call{
		{Timestamp: 1741944413, Transcription: "Engine 5 responding"}, // 2025-03-14 05:26:53 EDT
		{Timestamp: 1741944473, Transcription: "On scene"},
	}

	got := formatTranscripts(calls, loc)
	want := "[Mar 14 05:26:53] Engine 5 responding\n[Mar 14 05:27:53] On scene"
	if got != want {
		t.Errorf("formatTranscripts = %q, want %q", got, want)
	}
}

func TestFormatTranscriptsDropsOldestOverBudget(t *testing.T) {
	long := strings.Repeat("x", 60_000)
	calls := []database.Call{
		{Timestamp: 1741944413, Transcription: "oldest " + long},
		{Timestamp: 1741944473, Transcription: "middle " + long},
		{Timestamp: 1741944533, Transcription: "newest " + long},
	}

	got := formatTranscripts(calls, time.UTC)
	if strings.Contains(got, "oldest") {
		t.Error("oldest line survived the context budget")
	}
	if !strings.Contains(got, "newest") {
		t.Error("newest line was dropped")
	}
	if len(got) > askContextChars {
		t.Errorf("context is %d chars, budget %d", len(got), askContextChars)
	}
}
