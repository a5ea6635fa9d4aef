package ingest

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		wantUnix int64
		dialect  Dialect
		ok       bool
	}{
		{"unix seconds", "1741945613", 1741945613, DialectTrunkRecorder, true},
		{"iso8601 with zone", "2025-03-14T09:26:53Z", 1741944413, DialectRdioScanner, true},
		{"iso8601 bare", "2025-03-14T09:26:53", 1741944413, DialectRdioScanner, true},
		{"small integer is not a timestamp", "42", now.Unix(), DialectUnknown, false},
		{"garbage", "yesterday-ish", now.Unix(), DialectUnknown, false},
		{"empty", "", now.Unix(), DialectUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, dialect, ok := ParseDateTime(tt.raw, now)
			if ts.Unix() != tt.wantUnix {
				t.Errorf("ts = %d, want %d", ts.Unix(), tt.wantUnix)
			}
			if dialect != tt.dialect || ok != tt.ok {
				t.Errorf("(dialect, ok) = (%s, %v), want (%s, %v)", dialect, ok, tt.dialect, tt.ok)
			}
		})
	}
}

func TestParseSources(t *testing.T) {
	tests := []struct {
		name, raw, want string
	}{
		{"first entry wins", `[{"src": 567890}, {"src": 111}]`, "567890"},
		{"string src", `[{"src": "567890"}]`, "567890"},
		{"empty array", `[]`, ""},
		{"malformed", `{nope`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseSources(tt.raw); got != tt.want {
				t.Errorf("ParseSources(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSumFrequencies(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		errs, spks int
		ok         bool
	}{
		{"summed", `[{"errorCount":2,"spikeCount":1},{"errorCount":3,"spikeCount":4}]`, 5, 5, true},
		{"empty field", "", 0, 0, true},
		{"empty array", `[]`, 0, 0, true},
		{"malformed yields zeros", `{"not":"an array"`, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, spks, ok := SumFrequencies(tt.raw)
			if errs != tt.errs || spks != tt.spks || ok != tt.ok {
				t.Errorf("SumFrequencies(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.raw, errs, spks, ok, tt.errs, tt.spks, tt.ok)
			}
		})
	}
}

func TestIsSDRTrunk(t *testing.T) {
	if !IsSDRTrunk("sdrtrunk v0.6.0") {
		t.Error("sdrtrunk UA not detected")
	}
	if IsSDRTrunk("TrunkRecorder/4.0") {
		t.Error("TrunkRecorder misdetected as sdrtrunk")
	}
}
