package discord

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
)

// keywordCacheTTL bounds how stale the in-memory keyword list can be
// after an admin edits it.
const keywordCacheTTL = time.Minute

// AlertSender posts plain alert messages. The bot implements it over
// discordgo.
type AlertSender interface {
	SendAlert(channelID, content string) error
}

// Alerter fires a message into the alert channel when a finished
// call's transcription contains a configured keyword. Matching is
// whole-word and case-insensitive, against the final stored text.
type Alerter struct {
	db        *database.DB
	sender    AlertSender
	channelID string
	log       zerolog.Logger

	mu      sync.Mutex
	cached  []database.AlertKeyword
	fetched time.Time
}

func NewAlerter(db *database.DB, sender AlertSender, channelID string, log zerolog.Logger) *Alerter {
	return &Alerter{
		db:        db,
		sender:    sender,
		channelID: channelID,
		log:       log.With().Str("component", "alerts").Logger(),
	}
}

// Check matches the call against every keyword in scope and sends one
// alert per hit, jump-linking back to the coalesced message.
func (a *Alerter) Check(ctx context.Context, call *database.Call, tg database.Talkgroup, msgURL string) {
	if a.channelID == "" || call.Transcription == "" {
		return
	}

	for _, kw := range a.keywords(ctx) {
		if kw.TalkGroupID != nil && *kw.TalkGroupID != call.TalkGroupID {
			continue
		}
		if !matchKeyword(call.Transcription, kw.Keyword) {
			continue
		}
		where := tg.AlphaTag
		if where == "" {
			where = "talkgroup " + call.TalkGroupID
		}
		content := fmt.Sprintf("🚨 Keyword **%s** on **%s**\n%s\n[View call](%s)",
			kw.Keyword, where, call.Transcription, msgURL)
		if err := a.sender.SendAlert(a.channelID, content); err != nil {
			a.log.Warn().Err(err).Str("keyword", kw.Keyword).Msg("alert send failed")
		}
	}
}

func (a *Alerter) keywords(ctx context.Context) []database.AlertKeyword {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.fetched) < keywordCacheTTL {
		return a.cached
	}
	kws, err := a.db.ListKeywords(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("keyword list failed, using cached set")
		return a.cached
	}
	a.cached = kws
	a.fetched = time.Now()
	return kws
}

// matchKeyword reports whether the keyword occurs as a whole word,
// case-insensitively. "fire" matches "structure fire reported" but
// not "firefighter".
func matchKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
