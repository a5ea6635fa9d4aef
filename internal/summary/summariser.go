package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/llm"
)

const (
	cadence       = 10 * time.Minute
	maxHighlights = 5
	buckets       = 4
)

const summarySystemPrompt = "You summarise public-safety radio traffic for a live dashboard. " +
	"Respond with JSON only, no prose around it: " +
	`{"summary": "...", "highlights": [{"id": 0, "talk_group": "", "importance": 1, "description": "", "timestamp": 0}]}. ` +
	"Importance runs 1 (routine) to 5 (major incident). Timestamps are Unix seconds copied from the input."

// Publisher receives each finished digest. The Discord pinned-embed
// channel implements it; a nil publisher skips that leg.
type Publisher interface {
	PublishSummary(s *Summary) error
}

// Summariser runs the digest cycle.
type Summariser struct {
	db        *database.DB
	llm       llm.Completer
	publisher Publisher
	loc       *time.Location
	lookback  time.Duration
	jsonPath  string
	log       zerolog.Logger
	now       func() time.Time
}

type Options struct {
	DB        *database.DB
	LLM       llm.Completer
	Publisher Publisher
	Location  *time.Location
	Lookback  time.Duration
	JSONPath  string
	Log       zerolog.Logger
}

func New(opts Options) *Summariser {
	return &Summariser{
		db:        opts.DB,
		llm:       opts.LLM,
		publisher: opts.Publisher,
		loc:       opts.Location,
		lookback:  opts.Lookback,
		jsonPath:  opts.JSONPath,
		log:       opts.Log.With().Str("component", "summariser").Logger(),
		now:       time.Now,
	}
}

// Run produces a digest immediately and then every ten minutes until
// ctx is cancelled.
func (s *Summariser) Run(ctx context.Context) error {
	s.cycle(ctx)

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Summariser) cycle(ctx context.Context) {
	end := s.now()
	start := end.Add(-s.lookback)

	calls, err := s.db.TranscriptsInWindow(ctx, start, end)
	if err != nil {
		s.log.Error().Err(err).Msg("summary transcript fetch failed")
		return
	}
	if len(calls) == 0 {
		s.log.Debug().Msg("no traffic in summary window")
		return
	}

	candidates := selectCandidates(calls, start, end)
	digest, err := s.generate(ctx, calls, candidates)
	if err != nil {
		s.log.Error().Err(err).Msg("summary generation failed")
		return
	}
	digest.GeneratedAt = end.Unix()
	digest.WindowHours = s.lookback.Hours()

	if err := s.writeJSON(digest); err != nil {
		s.log.Error().Err(err).Str("path", s.jsonPath).Msg("summary json write failed")
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSummary(digest); err != nil {
			s.log.Warn().Err(err).Msg("summary publish failed")
		}
	}
	s.log.Info().Int("calls", len(calls)).Int("highlights", len(digest.Highlights)).Msg("summary cycle complete")
}

// selectCandidates divides the window into equal time buckets and
// picks the longest transcript from each, plus the overall longest if
// it was not already picked, capped at maxHighlights.
func selectCandidates(calls []database.Call, start, end time.Time) []database.Call {
	width := end.Sub(start) / buckets
	if width <= 0 {
		width = time.Second
	}

	longestIn := make([]*database.Call, buckets)
	var overall *database.Call
	for i := range calls {
		c := &calls[i]
		b := int(time.Unix(c.Timestamp, 0).Sub(start) / width)
		if b < 0 {
			b = 0
		}
		if b >= buckets {
			b = buckets - 1
		}
		if longestIn[b] == nil || len(c.Transcription) > len(longestIn[b].Transcription) {
			longestIn[b] = c
		}
		if overall == nil || len(c.Transcription) > len(overall.Transcription) {
			overall = c
		}
	}

	var out []database.Call
	seen := make(map[int64]bool)
	for _, c := range longestIn {
		if c != nil && !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, *c)
		}
	}
	if overall != nil && !seen[overall.ID] && len(out) < maxHighlights {
		out = append(out, *overall)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if len(out) > maxHighlights {
		out = out[:maxHighlights]
	}
	return out
}

func (s *Summariser) generate(ctx context.Context, calls, candidates []database.Call) (*Summary, error) {
	var sb strings.Builder
	sb.WriteString("Candidate highlight calls:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "id=%d talk_group=%s timestamp=%d: %s\n", c.ID, c.TalkGroupID, c.Timestamp, c.Transcription)
	}
	sb.WriteString("\nAll traffic in the window:\n")
	for _, c := range calls {
		ts := time.Unix(c.Timestamp, 0).In(s.loc).Format("15:04")
		fmt.Fprintf(&sb, "[%s] %s\n", ts, c.Transcription)
	}

	cctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	reply, err := s.llm.Complete(cctx, llm.Request{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   sb.String(),
		Temperature:  0.2,
		MaxTokens:    1500,
	})
	if err != nil {
		return nil, fmt.Errorf("summary completion: %w", err)
	}
	return parseModelSummary(reply)
}

// writeJSON writes the digest atomically so the web client never reads
// a half-written file.
func (s *Summariser) writeJSON(digest *Summary) error {
	data, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.jsonPath)
	tmp, err := os.CreateTemp(dir, ".summary-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.jsonPath)
}
