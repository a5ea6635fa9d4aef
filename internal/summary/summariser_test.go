package summary

import (
	"strings"
	"testing"
	"time"

	"github.com/snarg/scanmap/internal/database"
)

func TestSelectCandidates(t *testing.T) {
	start := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour) // 15-minute buckets

	call := func(id int64, minute int, textLen int) database.Call {
		return database.Call{
			ID:            id,
			Timestamp:     start.Add(time.Duration(minute) * time.Minute).Unix(),
			Transcription: strings.Repeat("x", textLen),
		}
	}

	t.Run("longest per bucket", func(t *testing.T) {
		calls := []database.Call{
			call(1, 5, 10), call(2, 10, 50), // bucket 0: id 2 wins
			call(3, 20, 30), // bucket 1
			call(4, 35, 20), call(5, 40, 5), // bucket 2: id 4 wins
			call(6, 50, 80), // bucket 3, also overall longest
		}
		got := selectCandidates(calls, start, end)
		wantIDs := []int64{2, 3, 4, 6}
		if len(got) != len(wantIDs) {
			t.Fatalf("got %d candidates, want %d", len(got), len(wantIDs))
		}
		for i, want := range wantIDs {
			if got[i].ID != want {
				t.Errorf("candidate[%d].ID = %d, want %d", i, got[i].ID, want)
			}
		}
	})

	t.Run("overall longest added when distinct", func(t *testing.T) {
		// All traffic in bucket 0 except a short call in bucket 3; the
		// overall longest is bucket 0's winner, so no fifth candidate.
		calls := []database.Call{
			call(1, 5, 100),
			call(2, 50, 10),
		}
		got := selectCandidates(calls, start, end)
		if len(got) != 2 {
			t.Fatalf("got %d candidates, want 2", len(got))
		}
	})

	t.Run("empty buckets skipped", func(t *testing.T) {
		calls := []database.Call{call(1, 5, 10)}
		got := selectCandidates(calls, start, end)
		if len(got) != 1 || got[0].ID != 1 {
			t.Fatalf("got %+v, want just call 1", got)
		}
	})

	t.Run("cap at five", func(t *testing.T) {
		calls := []database.Call{
			call(1, 1, 10), call(2, 16, 10), call(3, 31, 10), call(4, 46, 10),
		}
		got := selectCandidates(calls, start, end)
		if len(got) > maxHighlights {
			t.Fatalf("got %d candidates, cap is %d", len(got), maxHighlights)
		}
	})
}

func TestParseModelSummary(t *testing.T) {
	raw := "```json\n" + `{
		"summary": "Quiet hour with one structure fire.",
		"highlights": [
			{"id": 42, "talk_group": "1234", "importance": 4, "description": "Structure fire", "timestamp": "2025-03-14T09:26:53Z"},
			{"id": 43, "talk_group": "1234", "importance": 1, "description": "Routine transport", "timestamp": 1741944500}
		]
	}` + "\n```"

	s, err := parseModelSummary(raw)
	if err != nil {
		t.Fatal(err)
	}
	if s.Summary != "Quiet hour with one structure fire." {
		t.Errorf("summary = %q", s.Summary)
	}
	if len(s.Highlights) != 2 {
		t.Fatalf("got %d highlights, want 2", len(s.Highlights))
	}
	if got := int64(s.Highlights[0].Timestamp); got != 1741944413 {
		t.Errorf("string timestamp coerced to %d, want 1741944413", got)
	}
	if got := int64(s.Highlights[1].Timestamp); got != 1741944500 {
		t.Errorf("numeric timestamp = %d, want 1741944500", got)
	}
}

func TestParseModelSummaryRejectsGarbage(t *testing.T) {
	if _, err := parseModelSummary("I could not produce a summary."); err == nil {
		t.Error("want error for non-JSON reply")
	}
}

func TestUnixTimeUnparseableZeroes(t *testing.T) {
	var ts UnixTime
	if err := ts.UnmarshalJSON([]byte(`"sometime this morning"`)); err != nil {
		t.Fatal(err)
	}
	if ts != 0 {
		t.Errorf("ts = %d, want 0", ts)
	}
}
