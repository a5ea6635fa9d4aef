package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/llm"
)

type fakeCompleter struct {
	answer string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.prompt = req.UserPrompt
	return f.answer, nil
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		town   string
		want   string
	}{
		{"address found", "123 Main Street, Smithtown", "Smithtown", "123 Main St, Smithtown, NY"},
		{"sentinel", "No address found", "Smithtown", ""},
		{"city only coerced", "Smithtown, NY", "Smithtown", ""},
		{"bare town coerced", "Smithtown", "Smithtown", ""},
		{"state only coerced", "NY", "Smithtown", ""},
		{"street without number coerced", "Main St", "Smithtown", ""},
		{"intersection kept", "Main St & Oak Ave, Smithtown", "Smithtown", "Main St & Oak Ave, Smithtown, NY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{answer: tt.answer}
			e := New(fc, "NY", "Smithtown", zerolog.Nop())
			got, err := e.Extract(context.Background(), "structure fire reported at the location", tt.town)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractPromptCarriesTown(t *testing.T) {
	fc := &fakeCompleter{answer: "No address found"}
	e := New(fc, "NY", "", zerolog.Nop())
	if _, err := e.Extract(context.Background(), "ambulance call", "Kings Park"); err != nil {
		t.Fatal(err)
	}
	if want := "Kings Park"; !strings.Contains(fc.prompt, want) {
		t.Errorf("prompt %q does not mention town %q", fc.prompt, want)
	}
}
