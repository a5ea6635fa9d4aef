package discord

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
)

// ChannelResolver maps a (category, channel name) pair to a Discord
// channel id, creating both on demand.
type ChannelResolver interface {
	EnsureChannel(category, name string) (string, error)
}

// Fanout routes each finished call to its talkgroup's channel: the
// category is the talkgroup's county, the channel its alpha tag. It
// owns the talkgroup lookup cache; the coalescer owns the per-channel
// message state.
type Fanout struct {
	db        *database.DB
	cfg       *config.Config
	resolver  ChannelResolver
	coalescer *Coalescer
	alerter   *Alerter
	relay     *VoiceRelay
	log       zerolog.Logger

	mu      sync.Mutex
	tgCache map[string]database.Talkgroup
}

type FanoutOptions struct {
	DB        *database.DB
	Config    *config.Config
	Resolver  ChannelResolver
	Coalescer *Coalescer
	Alerter   *Alerter
	Relay     *VoiceRelay
	Log       zerolog.Logger
}

func NewFanout(opts FanoutOptions) *Fanout {
	return &Fanout{
		db:        opts.DB,
		cfg:       opts.Config,
		resolver:  opts.Resolver,
		coalescer: opts.Coalescer,
		alerter:   opts.Alerter,
		relay:     opts.Relay,
		log:       opts.Log.With().Str("component", "fanout").Logger(),
		tgCache:   make(map[string]database.Talkgroup),
	}
}

// CallFinished posts one line for the call into its talkgroup channel.
// Discord failures are logged and dropped; the pipeline never blocks
// on fan-out.
func (f *Fanout) CallFinished(ctx context.Context, call *database.Call) {
	tg := f.talkgroup(ctx, call.TalkGroupID)

	category := strings.TrimSpace(tg.County)
	if category == "" {
		category = "Uncategorized"
	}
	channelID, err := f.resolver.EnsureChannel(category, channelName(tg))
	if err != nil {
		f.log.Warn().Err(err).Str("talkgroup", call.TalkGroupID).Msg("channel resolution failed")
		return
	}

	line := formatLine(call, f.cfg.PublicDomain)
	msgURL, err := f.coalescer.Post(channelID, call.TalkGroupID, line, call.ID)
	if err != nil {
		f.log.Warn().Err(err).Int64("call_id", call.ID).Msg("discord post failed")
		return
	}

	if f.alerter != nil {
		f.alerter.Check(ctx, call, tg, msgURL)
	}
	if f.relay != nil {
		f.relay.Enqueue(call.TalkGroupID, call.ID, call.AudioKey)
	}
}

func (f *Fanout) talkgroup(ctx context.Context, id string) database.Talkgroup {
	f.mu.Lock()
	tg, ok := f.tgCache[id]
	f.mu.Unlock()
	if ok {
		return tg
	}

	got, err := f.db.GetTalkgroup(ctx, id)
	if err != nil {
		// Unknown talkgroups still get a channel, named after the id.
		return database.Talkgroup{ID: id}
	}
	f.mu.Lock()
	f.tgCache[id] = *got
	f.mu.Unlock()
	return *got
}

var channelNameRe = regexp.MustCompile(`[^a-z0-9]+`)

// channelName derives a Discord-legal channel name from the alpha tag.
func channelName(tg database.Talkgroup) string {
	name := channelNameRe.ReplaceAllString(strings.ToLower(tg.AlphaTag), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "tg-" + tg.ID
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// formatLine renders one call as a message line:
//
//	**<source-tag>**<signal-quality?>: <transcription> [Audio](<url>)
func formatLine(call *database.Call, domain string) string {
	tag := "Unknown"
	if call.SourceID != nil {
		tag = fmt.Sprintf("Unit %d", *call.SourceID)
	}
	quality := ""
	if call.ErrorCount > 0 || call.SpikeCount > 0 {
		quality = fmt.Sprintf(" (%dE/%dS)", call.ErrorCount, call.SpikeCount)
	}
	text := strings.TrimSpace(call.Transcription)
	if text == "" {
		text = "*Untranscribable audio*"
	}
	return fmt.Sprintf("**%s**%s: %s [Audio](https://%s/audio/%d)", tag, quality, text, domain, call.ID)
}
