// Package ingest normalises call uploads from the two capture-software
// dialects and orchestrates the processing pipeline: persist, queue
// transcription, extract and geocode, fan out.
package ingest

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// Meta is the quintuple encoded in a generated audio key. Audio keys
// double as deduplication identities: the same call uploaded twice
// produces the same key.
type Meta struct {
	Timestamp time.Time
	System    string
	Talkgroup string
	Source    string
	Ext       string // without the dot
}

var fieldSanitizer = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// sanitizeField keeps a metadata field from colliding with the key's
// underscore separators.
func sanitizeField(s string) string {
	s = fieldSanitizer.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unknown"
	}
	return s
}

// GenerateAudioKey builds the storage key
// YYYYMMDD_HHMMSS_<system>_<tg>_TO_<tg>_FROM_<src>.<ext>.
func GenerateAudioKey(m Meta) string {
	ext := strings.TrimPrefix(m.Ext, ".")
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s_%s_%s_TO_%s_FROM_%s.%s",
		m.Timestamp.Format("20060102_150405"),
		sanitizeField(m.System),
		sanitizeField(m.Talkgroup),
		sanitizeField(m.Talkgroup),
		sanitizeField(m.Source),
		ext)
}

// ParseAudioKey inverts GenerateAudioKey. The timestamp is interpreted
// in loc.
func ParseAudioKey(key string, loc *time.Location) (Meta, error) {
	ext := strings.TrimPrefix(path.Ext(key), ".")
	if ext == "" {
		return Meta{}, fmt.Errorf("audio key %q: no extension", key)
	}
	base := strings.TrimSuffix(key, "."+ext)

	base, src, ok := cutLast(base, "_FROM_")
	if !ok {
		return Meta{}, fmt.Errorf("audio key %q: missing _FROM_ segment", key)
	}
	base, toTG, ok := cutLast(base, "_TO_")
	if !ok {
		return Meta{}, fmt.Errorf("audio key %q: missing _TO_ segment", key)
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 {
		return Meta{}, fmt.Errorf("audio key %q: malformed prefix", key)
	}
	ts, err := time.ParseInLocation("20060102_150405", parts[0]+"_"+parts[1], loc)
	if err != nil {
		return Meta{}, fmt.Errorf("audio key %q: bad timestamp: %w", key, err)
	}

	rest := parts[2]
	idx := strings.LastIndex(rest, "_")
	if idx < 0 {
		return Meta{}, fmt.Errorf("audio key %q: missing talkgroup", key)
	}
	system, tg := rest[:idx], rest[idx+1:]
	if tg != toTG {
		return Meta{}, fmt.Errorf("audio key %q: talkgroup mismatch %q vs %q", key, tg, toTG)
	}

	return Meta{Timestamp: ts, System: system, Talkgroup: tg, Source: src, Ext: ext}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

var fromSourceRe = regexp.MustCompile(`_FROM_(\d+)`)

// SourceFromFilename recovers the source unit id SDRTrunk embeds in
// its original filenames when the form field is absent.
func SourceFromFilename(name string) string {
	m := fromSourceRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
