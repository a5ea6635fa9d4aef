package livefeed

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/llm"
)

// Categories is the fixed incident-type enum the map client colours
// markers by. The classifier may only answer from this list.
var Categories = []string{
	"FIRE", "MEDICAL", "MVA", "RESCUE", "HAZMAT", "POLICE", "ALARM", "OTHER",
}

const classifyPrompt = `Classify the emergency dispatch transcript into exactly one category.
Answer with only the category word, nothing else.
Categories: FIRE, MEDICAL, MVA, RESCUE, HAZMAT, POLICE, ALARM, OTHER.
MVA means motor vehicle accident. When unsure, answer OTHER.`

// Classifier labels transcripts for the map. Any answer outside the
// enum is coerced to OTHER.
type Classifier struct {
	llm llm.Completer
	log zerolog.Logger
}

func NewClassifier(completer llm.Completer, log zerolog.Logger) *Classifier {
	return &Classifier{
		llm: completer,
		log: log.With().Str("component", "classifier").Logger(),
	}
}

func (c *Classifier) Classify(ctx context.Context, transcription string) string {
	answer, err := c.llm.Complete(ctx, llm.Request{
		SystemPrompt: classifyPrompt,
		UserPrompt:   transcription,
		Temperature:  0.0,
		MaxTokens:    10,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("classification failed")
		return "OTHER"
	}
	return CoerceCategory(answer)
}

// CoerceCategory maps a model answer onto the enum.
func CoerceCategory(answer string) string {
	got := strings.ToUpper(strings.TrimSpace(strings.Trim(answer, ".\"'`")))
	for _, cat := range Categories {
		if got == cat {
			return cat
		}
	}
	// Models sometimes answer in a sentence; take any category word it
	// contains.
	for _, cat := range Categories {
		if cat != "OTHER" && strings.Contains(got, cat) {
			return cat
		}
	}
	return "OTHER"
}
