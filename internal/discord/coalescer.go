// Package discord fans finished calls out to per-talkgroup Discord
// channels, fires keyword alerts, answers Ask-AI questions, and relays
// call audio into voice channels on request.
package discord

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/metrics"
)

const (
	// coalesceCooldown is how long a coalesced message keeps accepting
	// appended lines.
	coalesceCooldown = 15 * time.Second

	// bodyBudget is Discord's embed description limit.
	bodyBudget = 4096

	lineJoiner = "\n\n"
)

// MessageSender is the slice of the Discord API the coalescer drives.
// The bot implements it over discordgo; tests implement it in memory.
type MessageSender interface {
	// SendCoalesced posts a fresh embed and returns its message id.
	SendCoalesced(channelID, talkgroupID, body string) (string, error)
	// EditCoalesced replaces an existing embed's body.
	EditCoalesced(channelID, messageID, body string) error
}

type cacheEntry struct {
	messageID string
	talkgroup string
	lastPost  time.Time
	body      string
	callIDs   []int64
}

// channelState serialises the decision table per channel so slow
// Discord calls on one channel never block another.
type channelState struct {
	mu    sync.Mutex
	entry *cacheEntry
}

// Coalescer concatenates near-in-time call lines into one embed per
// channel, up to the cooldown and body budget.
type Coalescer struct {
	sender  MessageSender
	guildID string
	log     zerolog.Logger

	mu       sync.Mutex
	channels map[string]*channelState

	now func() time.Time
}

func NewCoalescer(sender MessageSender, guildID string, log zerolog.Logger) *Coalescer {
	return &Coalescer{
		sender:   sender,
		guildID:  guildID,
		log:      log.With().Str("component", "coalescer").Logger(),
		channels: make(map[string]*channelState),
		now:      time.Now,
	}
}

func (c *Coalescer) channel(channelID string) *channelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.channels[channelID]
	if !ok {
		cs = &channelState{}
		c.channels[channelID] = cs
	}
	return cs
}

// Post files one call line into a channel and returns the URL of the
// message it landed in. Within the cooldown, lines are appended to the
// existing embed by editing it in place; a line that would push the
// body past the budget, an expired cooldown, or a failed edit all
// produce a fresh embed instead.
func (c *Coalescer) Post(channelID, talkgroupID, line string, callID int64) (string, error) {
	if len(line) > bodyBudget {
		line = line[:bodyBudget]
	}

	cs := c.channel(channelID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := c.now()
	if e := cs.entry; e != nil && now.Sub(e.lastPost) < coalesceCooldown {
		merged := e.body + lineJoiner + line
		if len(merged) <= bodyBudget {
			if err := c.sender.EditCoalesced(channelID, e.messageID, merged); err != nil {
				c.log.Warn().Err(err).Str("channel_id", channelID).Msg("coalesce edit failed, sending fresh")
				cs.entry = nil
			} else {
				e.body = merged
				e.callIDs = append(e.callIDs, callID)
				e.lastPost = now
				metrics.DiscordMessagesEdited.Inc()
				return c.messageURL(channelID, e.messageID), nil
			}
		} else {
			cs.entry = nil
		}
	}

	messageID, err := c.sender.SendCoalesced(channelID, talkgroupID, line)
	if err != nil {
		cs.entry = nil
		return "", fmt.Errorf("send coalesced message: %w", err)
	}
	cs.entry = &cacheEntry{
		messageID: messageID,
		talkgroup: talkgroupID,
		lastPost:  now,
		body:      line,
		callIDs:   []int64{callID},
	}
	metrics.DiscordMessagesSent.Inc()
	return c.messageURL(channelID, messageID), nil
}

func (c *Coalescer) messageURL(channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", c.guildID, channelID, messageID)
}

// GC drops channel state whose entry is past the cooldown. Run
// periodically; the entry map otherwise grows with every channel that
// ever saw traffic.
func (c *Coalescer) GC() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cs := range c.channels {
		if !cs.mu.TryLock() {
			continue
		}
		stale := cs.entry == nil || now.Sub(cs.entry.lastPost) >= coalesceCooldown
		cs.mu.Unlock()
		if stale {
			delete(c.channels, id)
		}
	}
}
