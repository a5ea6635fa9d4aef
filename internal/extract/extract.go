// Package extract pulls street addresses out of dispatch transcripts
// with an LLM and normalises them for geocoding.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/llm"
)

const systemPrompt = `You extract street addresses from emergency dispatch radio transcripts.
Rules:
- Reply with exactly one line.
- If the transcript contains a street address or intersection, reply with only that address. Include the town if the transcript names one.
- If there is no street address, reply with exactly: No address found
- Never explain, never add notes, never guess an address that is not in the transcript.`

// Extractor asks the model for an address and post-processes the
// answer. Gating (mapped talkgroup, minimum transcript length) is the
// caller's job.
type Extractor struct {
	llm   llm.Completer
	state string
	city  string
	log   zerolog.Logger
}

func New(completer llm.Completer, state, city string, log zerolog.Logger) *Extractor {
	return &Extractor{
		llm:   completer,
		state: state,
		city:  city,
		log:   log.With().Str("component", "extract").Logger(),
	}
}

// Extract returns the normalised address found in the transcript, or
// "" when the model found none or answered with something too generic
// to geocode. town is the talkgroup's configured town and may be "".
func (e *Extractor) Extract(ctx context.Context, transcript, town string) (string, error) {
	prompt := "Transcript: " + transcript
	if town != "" {
		prompt += "\nThis talkgroup dispatches for " + town + ". If the transcript gives a street but no town, assume " + town + "."
	}

	answer, err := e.llm.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.1,
	})
	if err != nil {
		return "", fmt.Errorf("address extraction: %w", err)
	}

	addr := Normalize(answer, e.state)
	if addr == "" {
		return "", nil
	}
	if e.tooGeneric(addr, town) {
		e.log.Debug().Str("answer", addr).Msg("discarding generic extraction")
		return "", nil
	}
	return addr, nil
}

// tooGeneric rejects answers that name only a locality. "Smithtown,
// NY" geocodes fine but marks the middle of town, which is worse than
// no marker.
func (e *Extractor) tooGeneric(addr, town string) bool {
	bare := strings.TrimSpace(addr)
	if e.state != "" {
		re := ", " + e.state
		if idx := strings.LastIndex(bare, re); idx >= 0 && idx+len(re) == len(bare) {
			bare = strings.TrimSpace(bare[:idx])
		}
	}
	if bare == "" {
		return true
	}
	for _, locality := range []string{town, e.city, e.state} {
		if locality != "" && strings.EqualFold(bare, locality) {
			return true
		}
	}
	// An address without a single digit and without an intersection
	// marker is a place name, not a street address.
	if !strings.ContainsAny(bare, "0123456789") &&
		!strings.Contains(bare, "&") && !strings.Contains(strings.ToLower(bare), " and ") {
		return true
	}
	return false
}
