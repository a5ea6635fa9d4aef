package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/llm"
)

const askSystemPrompt = "You are an assistant for a public-safety radio monitoring service. " +
	"Answer the user's question using only the provided radio transcripts. " +
	"If the transcripts do not contain the answer, say so plainly."

// askContextChars caps the transcript context handed to the model,
// roughly a 35k-token window at 4 chars per token.
const askContextChars = 140_000

// askAnswerLimit is the embed-description budget for the reply.
const askAnswerLimit = 4096

// AskAI answers ad-hoc questions scoped to one talkgroup over a
// bounded lookback window.
type AskAI struct {
	db       *database.DB
	llm      llm.Completer
	loc      *time.Location
	lookback time.Duration
	log      zerolog.Logger
}

func NewAskAI(db *database.DB, completer llm.Completer, loc *time.Location, lookback time.Duration, log zerolog.Logger) *AskAI {
	return &AskAI{
		db:       db,
		llm:      completer,
		loc:      loc,
		lookback: lookback,
		log:      log.With().Str("component", "askai").Logger(),
	}
}

// Answer fetches the talkgroup's recent transcripts, feeds them to the
// LLM with the question, and returns an embed-sized reply.
func (a *AskAI) Answer(ctx context.Context, talkgroupID, question string) (string, error) {
	start := time.Now().Add(-a.lookback)
	calls, err := a.db.TranscriptsForTalkgroup(ctx, talkgroupID, start)
	if err != nil {
		return "", fmt.Errorf("fetch transcripts: %w", err)
	}
	if len(calls) == 0 {
		return "No radio traffic recorded on this talkgroup in the lookback window.", nil
	}

	transcript := formatTranscripts(calls, a.loc)
	prompt := fmt.Sprintf("Radio transcripts from the last %.0f hours:\n\n%s\n\nQuestion: %s",
		a.lookback.Hours(), transcript, question)

	reply, err := a.llm.Complete(ctx, llm.Request{
		SystemPrompt: askSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.3,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", fmt.Errorf("llm answer: %w", err)
	}

	reply = strings.TrimSpace(llm.StripThink(reply))
	if len(reply) > askAnswerLimit {
		reply = reply[:askAnswerLimit]
	}
	return reply, nil
}

// formatTranscripts renders calls as "[localised time] text" lines,
// dropping the oldest lines when the context budget is exceeded.
func formatTranscripts(calls []database.Call, loc *time.Location) string {
	lines := make([]string, 0, len(calls))
	total := 0
	for _, c := range calls {
		ts := time.Unix(c.Timestamp, 0).In(loc).Format("Jan 2 15:04:05")
		line := fmt.Sprintf("[%s] %s", ts, c.Transcription)
		lines = append(lines, line)
		total += len(line) + 1
	}
	for len(lines) > 1 && total > askContextChars {
		total -= len(lines[0]) + 1
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
