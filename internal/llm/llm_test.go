package llm

import "testing"

func TestStripThink(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"no block", "123 Main St", "123 Main St"},
		{"leading block", "<think>reasoning here</think>123 Main St", "123 Main St"},
		{"multiline block", "<think>line one\nline two</think>\nNo address found", "No address found"},
		{"unterminated block", "answer<think>never closed", "answer"},
		{"two blocks", "<think>a</think>x<think>b</think>y", "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThink(tt.in); got != tt.want {
				t.Errorf("StripThink(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripMarkdownFence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFence(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
