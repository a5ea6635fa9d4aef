package ingest

import (
	"testing"
	"time"
)

func TestAudioKeyRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, loc)

	tests := []struct {
		name string
		meta Meta
	}{
		{"plain", Meta{Timestamp: ts, System: "SuffolkFD", Talkgroup: "1234", Source: "567890", Ext: "mp3"}},
		{"m4a", Meta{Timestamp: ts, System: "TRS-East", Talkgroup: "88", Source: "0", Ext: "m4a"}},
		{"unknown source", Meta{Timestamp: ts, System: "Sys1", Talkgroup: "42", Source: "unknown", Ext: "mp3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateAudioKey(tt.meta)
			got, err := ParseAudioKey(key, loc)
			if err != nil {
				t.Fatalf("ParseAudioKey(%q): %v", key, err)
			}
			if !got.Timestamp.Equal(tt.meta.Timestamp) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, tt.meta.Timestamp)
			}
			if got.System != tt.meta.System || got.Talkgroup != tt.meta.Talkgroup ||
				got.Source != tt.meta.Source || got.Ext != tt.meta.Ext {
				t.Errorf("ParseAudioKey(%q) = %+v, want %+v", key, got, tt.meta)
			}
		})
	}
}

func TestGenerateAudioKeySanitizes(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	key := GenerateAudioKey(Meta{
		Timestamp: ts,
		System:    "Suffolk County FD",
		Talkgroup: "1234",
		Source:    "",
		Ext:       ".mp3",
	})
	want := "20250314_092653_Suffolk-County-FD_1234_TO_1234_FROM_unknown.mp3"
	if key != want {
		t.Errorf("got %q, want %q", key, want)
	}

	// Sanitised keys must still round-trip.
	if _, err := ParseAudioKey(key, time.UTC); err != nil {
		t.Errorf("sanitised key does not parse: %v", err)
	}
}

func TestParseAudioKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"noextension",
		"20250314_092653_Sys_12.mp3",                     // no TO/FROM
		"20250314_092653_Sys_12_TO_13_FROM_567890.mp3",   // talkgroup mismatch
		"2025XX14_092653_Sys_12_TO_12_FROM_567890.mp3",   // bad timestamp
	} {
		if _, err := ParseAudioKey(key, time.UTC); err == nil {
			t.Errorf("ParseAudioKey(%q) succeeded, want error", key)
		}
	}
}

func TestSourceFromFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"20250314_092653Suffolk_TG1234_TO_1234_FROM_567890.mp3", "567890"},
		{"recording_FROM_42.mp3", "42"},
		{"no_source_here.mp3", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SourceFromFilename(tt.in); got != tt.want {
			t.Errorf("SourceFromFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
