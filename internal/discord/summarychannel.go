package discord

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/summary"
)

// SummaryChannel maintains one pinned digest embed, edited in place on
// every summariser cycle. On startup it reuses an existing pinned bot
// message so restarts do not stack duplicates.
type SummaryChannel struct {
	session   *discordgo.Session
	channelID string
	loc       *time.Location
	log       zerolog.Logger

	mu        sync.Mutex
	messageID string
}

func NewSummaryChannel(session *discordgo.Session, channelID string, loc *time.Location, log zerolog.Logger) *SummaryChannel {
	return &SummaryChannel{
		session:   session,
		channelID: channelID,
		loc:       loc,
		log:       log.With().Str("component", "summarychannel").Logger(),
	}
}

// PublishSummary implements summary.Publisher.
func (sc *SummaryChannel) PublishSummary(s *summary.Summary) error {
	embed := sc.buildEmbed(s)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.messageID == "" {
		sc.messageID = sc.findPinned()
	}
	if sc.messageID != "" {
		_, err := sc.session.ChannelMessageEditEmbed(sc.channelID, sc.messageID, embed)
		if err == nil {
			return nil
		}
		// Pinned message may have been deleted; fall back to a fresh send.
		sc.log.Warn().Err(err).Msg("summary embed edit failed")
		sc.messageID = ""
	}

	msg, err := sc.session.ChannelMessageSendEmbed(sc.channelID, embed)
	if err != nil {
		return fmt.Errorf("send summary embed: %w", err)
	}
	sc.messageID = msg.ID
	if err := sc.session.ChannelMessagePin(sc.channelID, msg.ID); err != nil {
		sc.log.Warn().Err(err).Msg("summary pin failed")
	}
	return nil
}

// findPinned returns the id of an existing pinned summary message from
// this bot, or "".
func (sc *SummaryChannel) findPinned() string {
	pinned, err := sc.session.ChannelMessagesPinned(sc.channelID)
	if err != nil {
		return ""
	}
	self := sc.session.State.User
	for _, msg := range pinned {
		if self != nil && msg.Author != nil && msg.Author.ID == self.ID && len(msg.Embeds) > 0 {
			return msg.ID
		}
	}
	return ""
}

func (sc *SummaryChannel) buildEmbed(s *summary.Summary) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(s.Highlights))
	for _, h := range s.Highlights {
		ts := time.Unix(int64(h.Timestamp), 0).In(sc.loc).Format("15:04")
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s %s — talkgroup %s", importanceMarker(h.Importance), ts, h.TalkGroup),
			Value: truncateField(h.Description),
		})
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Radio traffic, last %.0f h", s.WindowHours),
		Description: s.Summary,
		Color:       embedColor,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Updated " + time.Unix(s.GeneratedAt, 0).In(sc.loc).Format("Jan 2 15:04:05"),
		},
	}
}

func importanceMarker(n int) string {
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("❗", n)
}

// truncateField keeps a highlight inside Discord's 1024-char field
// value limit.
func truncateField(s string) string {
	if s == "" {
		return "—"
	}
	if len(s) > 1024 {
		return s[:1021] + "..."
	}
	return s
}
