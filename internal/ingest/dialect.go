package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies which capture software produced an upload.
type Dialect string

const (
	DialectSDRTrunk      Dialect = "sdrtrunk"
	DialectTrunkRecorder Dialect = "trunk-recorder"
	DialectRdioScanner   Dialect = "rdio-scanner"
	DialectUnknown       Dialect = "unknown"
)

// IsSDRTrunk checks the upload's User-Agent header.
func IsSDRTrunk(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), "sdrtrunk")
}

// minUnixSeconds distinguishes Unix-seconds dateTime values from small
// integers like durations or counters.
const minUnixSeconds = 1_000_000_000

// ParseDateTime normalises the dateTime form field. TrunkRecorder
// sends Unix seconds, rdio-scanner sends ISO-8601. When neither
// parses, the ingestion time stands in and ok is false so the caller
// can log it.
func ParseDateTime(raw string, now time.Time) (ts time.Time, dialect Dialect, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > minUnixSeconds {
			return time.Unix(secs, 0), DialectTrunkRecorder, true
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, DialectRdioScanner, true
			}
		}
	}
	return now, DialectUnknown, false
}

type sourceEntry struct {
	Src json.Number `json:"src"`
}

// ParseSources extracts the first source unit id from the sources JSON
// array TrunkRecorder sends. Returns "" when absent or malformed.
func ParseSources(raw string) string {
	if raw == "" {
		return ""
	}
	var entries []sourceEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil || len(entries) == 0 {
		return ""
	}
	return entries[0].Src.String()
}

type frequencyEntry struct {
	ErrorCount int `json:"errorCount"`
	SpikeCount int `json:"spikeCount"`
}

// SumFrequencies totals the per-frequency error and spike counts into
// the call's signal-quality pair. Malformed JSON yields (0, 0) and
// ok=false so the caller can log a warning instead of failing the
// upload.
func SumFrequencies(raw string) (errors, spikes int, ok bool) {
	if raw == "" {
		return 0, 0, true
	}
	var entries []frequencyEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0, 0, false
	}
	for _, e := range entries {
		errors += e.ErrorCount
		spikes += e.SpikeCount
	}
	return errors, spikes, true
}
