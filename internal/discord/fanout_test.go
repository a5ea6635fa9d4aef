package discord

import (
	"testing"

	"github.com/snarg/scanmap/internal/database"
)

func TestChannelName(t *testing.T) {
	tests := []struct {
		tg   database.Talkgroup
		want string
	}{
		{database.Talkgroup{ID: "1234", AlphaTag: "SCFD Dispatch 1"}, "scfd-dispatch-1"},
		{database.Talkgroup{ID: "1234", AlphaTag: "EMS/Fire (East)"}, "ems-fire-east"},
		{database.Talkgroup{ID: "1234", AlphaTag: ""}, "tg-1234"},
		{database.Talkgroup{ID: "1234", AlphaTag: "---"}, "tg-1234"},
	}
	for _, tt := range tests {
		if got := channelName(tt.tg); got != tt.want {
			t.Errorf("channelName(%q) = %q, want %q", tt.tg.AlphaTag, got, tt.want)
		}
	}
}

func TestFormatLine(t *testing.T) {
	src := int64(567890)
	tests := []struct {
		name string
		call database.Call
		want string
	}{
		{
			name: "with source and quality",
			call: database.Call{ID: 42, SourceID: &src, ErrorCount: 2, SpikeCount: 1, Transcription: "Engine 5 responding"},
			want: "**Unit 567890** (2E/1S): Engine 5 responding [Audio](https://scan.example.com/audio/42)",
		},
		{
			name: "no source clean signal",
			call: database.Call{ID: 7, Transcription: "Brush fire on Route 25"},
			want: "**Unknown**: Brush fire on Route 25 [Audio](https://scan.example.com/audio/7)",
		},
		{
			name: "empty transcription",
			call: database.Call{ID: 9, SourceID: &src},
			want: "**Unit 567890**: *Untranscribable audio* [Audio](https://scan.example.com/audio/9)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLine(&tt.call, "scan.example.com"); got != tt.want {
				t.Errorf("formatLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		text    string
		keyword string
		want    bool
	}{
		{"structure fire reported at Main St", "fire", true},
		{"Structure FIRE reported", "fire", true},
		{"firefighter on scene", "fire", false},
		{"misfire in the engine", "fire", false},
		{"cardiac arrest, CPR in progress", "cardiac arrest", true},
		{"", "fire", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := matchKeyword(tt.text, tt.keyword); got != tt.want {
			t.Errorf("matchKeyword(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
		}
	}
}
