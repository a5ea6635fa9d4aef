package apikeys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func writeKeyFile(t *testing.T, entries []Entry) string {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "apikeys.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func hashOf(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestValidate(t *testing.T) {
	path := writeKeyFile(t, []Entry{
		{Key: hashOf(t, "good-key")},
		{Key: hashOf(t, "disabled-key"), Disabled: true},
	})
	s, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if !s.Validate("good-key") {
		t.Error("Validate(good-key) = false, want true")
	}
	if s.Validate("disabled-key") {
		t.Error("Validate(disabled-key) = true, want false")
	}
	if s.Validate("wrong") {
		t.Error("Validate(wrong) = true, want false")
	}
}

func TestLoad_FirstBootGeneratesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikeys.json")
	s, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Disabled {
		t.Fatalf("got %+v, want one enabled entry", entries)
	}
	if s.Validate("not-the-generated-key") {
		t.Error("random key validated, want rejection")
	}
}

func TestLoad_EmptyFileGeneratesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikeys.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, zerolog.Nop()); err != nil {
		t.Fatalf("Load on empty file: %v", err)
	}
	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("empty key file not regenerated")
	}
}
