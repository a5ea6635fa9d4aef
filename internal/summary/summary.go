// Package summary produces the periodic incident digest: every cycle
// it selects representative transcripts from the lookback window, asks
// the LLM for a summary with ranked highlights, and publishes the
// result to a JSON artifact and a pinned Discord embed.
package summary

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snarg/scanmap/internal/llm"
)

// Highlight is one notable call picked out by the model.
type Highlight struct {
	ID          int64    `json:"id"`
	TalkGroup   string   `json:"talk_group"`
	Importance  int      `json:"importance"`
	Description string   `json:"description"`
	Timestamp   UnixTime `json:"timestamp"`
}

// Summary is the digest for one window.
type Summary struct {
	Summary     string      `json:"summary"`
	Highlights  []Highlight `json:"highlights"`
	GeneratedAt int64       `json:"generated_at"`
	WindowHours float64     `json:"window_hours"`
}

// UnixTime is a Unix-seconds timestamp that tolerates the model
// returning it as a JSON string, a formatted date, or a float.
type UnixTime int64

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*t = UnixTime(int64(n))
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			*t = UnixTime(ts.Unix())
			return nil
		}
	}
	// Unparseable timestamps zero out rather than sinking the digest.
	*t = 0
	return nil
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

// parseModelSummary decodes the LLM's JSON reply, stripping any
// markdown fence it wrapped around the payload.
func parseModelSummary(raw string) (*Summary, error) {
	raw = strings.TrimSpace(llm.StripMarkdownFence(raw))
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse summary json: %w", err)
	}
	return &s, nil
}
