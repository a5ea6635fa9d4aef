package extract

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"sentinel", "No address found", ""},
		{"sentinel case insensitive", "no address found", ""},
		{"empty", "   ", ""},
		{"think block stripped", "<think>the caller said main street</think>123 Main Street", "123 Main St, NY"},
		{"think block then sentinel", "<think>nothing here</think>No address found", ""},
		{"parenthesised comment removed", "123 Main St (near the church), Smithtown", "123 Main St, Smithtown, NY"},
		{"note line removed", "123 Main St\nNote: this is approximate", "123 Main St, NY"},
		{"state appended", "45 Oak Ave, Smithtown", "45 Oak Ave, Smithtown, NY"},
		{"state not duplicated", "45 Oak Ave, Smithtown, NY", "45 Oak Ave, Smithtown, NY"},
		{"digit commas joined", "12,325 Route 25", "12325 Route 25, NY"},
		{"spelled digits joined", "7-9-0-8 Jericho Tpke", "7908 Jericho Tpke, NY"},
		{"street types abbreviated", "10 Maple Avenue and Elm Road", "10 Maple Ave and Elm Rd, NY"},
		{
			"comma heavy takes first three segments",
			"123 Main St, Smithtown, NY, near the firehouse, second floor",
			"123 Main St, Smithtown, NY",
		},
		{
			"multiline takes shorter of first line and segments",
			"123 Main St\nThe address mentioned in the transcript is on the north side of town",
			"123 Main St, NY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, "NY"); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Normalising an already-normalised address must be a no-op, otherwise
// re-processing a stored address would mangle it.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"No address found",
		"123 Main Street (rear entrance), Smithtown",
		"12,325 Route 25, Smithtown",
		"7-9-0-8 Jericho Turnpike",
		"45 Oak Avenue, Smithtown, NY, apartment 2, ring twice",
		"123 Main St\nNote: approximate",
	}
	for _, in := range inputs {
		once := Normalize(in, "NY")
		twice := Normalize(once, "NY")
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalizeNoState(t *testing.T) {
	if got := Normalize("123 Main Street", ""); got != "123 Main St" {
		t.Errorf("got %q, want no state suffix when state unset", got)
	}
}
