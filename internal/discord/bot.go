package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/llm"
	"github.com/snarg/scanmap/internal/storage"
)

const embedColor = 0x2B6CB0

// Bot owns the discordgo session: it implements the sender and
// resolver surfaces the fan-out components need, and routes button,
// modal, and slash-command interactions.
type Bot struct {
	session *discordgo.Session
	cfg     *config.Config
	db      *database.DB
	askai   *AskAI
	relay   *VoiceRelay
	fanout  *Fanout
	log     zerolog.Logger

	mu         sync.Mutex
	channelIDs map[string]string // "category/name" -> channel id
	commands   []*discordgo.ApplicationCommand

	gcStop chan struct{}
}

type BotOptions struct {
	Config *config.Config
	DB     *database.DB
	LLM    llm.Completer
	Store  storage.AudioStore
	Log    zerolog.Logger
}

// NewBot creates the session and wires the fan-out stack. The gateway
// is not opened until Start.
func NewBot(opts BotOptions) (*Bot, error) {
	cfg := opts.Config
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session:    session,
		cfg:        cfg,
		db:         opts.DB,
		log:        opts.Log.With().Str("component", "discord").Logger(),
		channelIDs: make(map[string]string),
		gcStop:     make(chan struct{}),
	}

	b.relay = NewVoiceRelay(session, opts.Store, cfg.DiscordGuildID, opts.Log)
	b.askai = NewAskAI(opts.DB, opts.LLM, cfg.Location(),
		time.Duration(cfg.AskAILookbackHrs*float64(time.Hour)), opts.Log)

	coalescer := NewCoalescer(b, cfg.DiscordGuildID, opts.Log)
	alerter := NewAlerter(opts.DB, b, cfg.AlertChannelID, opts.Log)
	b.fanout = NewFanout(FanoutOptions{
		DB:        opts.DB,
		Config:    cfg,
		Resolver:  b,
		Coalescer: coalescer,
		Alerter:   alerter,
		Relay:     b.relay,
		Log:       opts.Log,
	})

	session.AddHandler(b.handleInteraction)
	return b, nil
}

// Fanout returns the call publisher for the pipeline to notify.
func (b *Bot) Fanout() *Fanout {
	return b.fanout
}

// Session exposes the underlying session for the summariser's pinned
// embed updates.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Start opens the gateway, registers slash commands, and starts the
// hourly message-cache GC.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.DiscordGuildID, keywordCommands())
	if err != nil {
		return fmt.Errorf("register discord commands: %w", err)
	}
	b.mu.Lock()
	b.commands = registered
	b.mu.Unlock()
	b.log.Info().Int("commands", len(registered)).Msg("discord bot connected")

	go b.gcLoop()
	return nil
}

// Stop unregisters commands, disconnects, and tears down the voice
// relay.
func (b *Bot) Stop() error {
	close(b.gcStop)
	b.relay.Close()

	b.mu.Lock()
	cmds := b.commands
	b.mu.Unlock()
	appID := b.session.State.User.ID
	for _, cmd := range cmds {
		if err := b.session.ApplicationCommandDelete(appID, b.cfg.DiscordGuildID, cmd.ID); err != nil {
			b.log.Warn().Err(err).Str("command", cmd.Name).Msg("command unregister failed")
		}
	}
	return b.session.Close()
}

func (b *Bot) gcLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-b.gcStop:
			return
		case <-ticker.C:
			b.fanout.coalescer.GC()
		}
	}
}

// SendCoalesced implements MessageSender: one embed with the Listen
// Live and Ask AI buttons attached.
func (b *Bot) SendCoalesced(channelID, talkgroupID, body string) (string, error) {
	msg, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{{Description: body, Color: embedColor}},
		Components: callButtons(talkgroupID),
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EditCoalesced implements MessageSender.
func (b *Bot) EditCoalesced(channelID, messageID, body string) error {
	embeds := []*discordgo.MessageEmbed{{Description: body, Color: embedColor}}
	_, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel: channelID,
		ID:      messageID,
		Embeds:  &embeds,
	})
	return err
}

// SendAlert implements AlertSender.
func (b *Bot) SendAlert(channelID, content string) error {
	_, err := b.session.ChannelMessageSend(channelID, content)
	return err
}

// EnsureChannel implements ChannelResolver: find or create the
// category and the text channel under it, memoising the result.
func (b *Bot) EnsureChannel(category, name string) (string, error) {
	key := category + "/" + name
	b.mu.Lock()
	if id, ok := b.channelIDs[key]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	guildID := b.cfg.DiscordGuildID
	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list guild channels: %w", err)
	}

	var categoryID string
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, category) {
			categoryID = ch.ID
			break
		}
	}
	if categoryID == "" {
		cat, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: category,
			Type: discordgo.ChannelTypeGuildCategory,
		})
		if err != nil {
			return "", fmt.Errorf("create category %q: %w", category, err)
		}
		categoryID = cat.ID
	}

	var channelID string
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == categoryID && ch.Name == name {
			channelID = ch.ID
			break
		}
	}
	if channelID == "" {
		ch, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: categoryID,
		})
		if err != nil {
			return "", fmt.Errorf("create channel %q: %w", name, err)
		}
		channelID = ch.ID
	}

	b.mu.Lock()
	b.channelIDs[key] = channelID
	b.mu.Unlock()
	return channelID, nil
}

func callButtons(talkgroupID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Listen Live",
					Style:    discordgo.PrimaryButton,
					CustomID: "listen_live:" + talkgroupID,
				},
				discordgo.Button{
					Label:    "Ask AI",
					Style:    discordgo.SecondaryButton,
					CustomID: "ask_ai:" + talkgroupID,
				},
			},
		},
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleKeywordCommand(s, i)
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		switch {
		case strings.HasPrefix(customID, "listen_live:"):
			b.handleListenLive(s, i, strings.TrimPrefix(customID, "listen_live:"))
		case strings.HasPrefix(customID, "ask_ai:"):
			b.openAskModal(s, i, strings.TrimPrefix(customID, "ask_ai:"))
		default:
			b.log.Warn().Str("custom_id", customID).Msg("unknown component interaction")
		}
	case discordgo.InteractionModalSubmit:
		customID := i.ModalSubmitData().CustomID
		if tg, ok := strings.CutPrefix(customID, "askai:"); ok {
			b.handleAskSubmit(s, i, tg)
		}
	}
}

func (b *Bot) handleListenLive(s *discordgo.Session, i *discordgo.InteractionCreate, talkgroupID string) {
	userID := interactionUserID(i)
	voiceChannelID := b.userVoiceChannel(s, userID)
	if voiceChannelID == "" {
		respondEphemeral(s, i, "Join a voice channel first, then press Listen Live.")
		return
	}

	if b.relay.Toggle(talkgroupID, voiceChannelID) {
		respondEphemeral(s, i, fmt.Sprintf("Now relaying talkgroup %s into your voice channel.", talkgroupID))
	} else {
		respondEphemeral(s, i, fmt.Sprintf("Stopped relaying talkgroup %s.", talkgroupID))
	}
}

func (b *Bot) userVoiceChannel(s *discordgo.Session, userID string) string {
	guild, err := s.State.Guild(b.cfg.DiscordGuildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (b *Bot) openAskModal(s *discordgo.Session, i *discordgo.InteractionCreate, talkgroupID string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "askai:" + talkgroupID,
			Title:    "Ask about recent radio traffic",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "question",
							Label:       "Question",
							Style:       discordgo.TextInputParagraph,
							Placeholder: "What happened on this talkgroup?",
							Required:    true,
							MaxLength:   500,
						},
					},
				},
			},
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("ask modal open failed")
	}
}

func (b *Bot) handleAskSubmit(s *discordgo.Session, i *discordgo.InteractionCreate, talkgroupID string) {
	question := modalInput(i.ModalSubmitData(), "question")
	if question == "" {
		respondEphemeral(s, i, "Empty question.")
		return
	}

	// The LLM round trip outlives Discord's 3 s interaction deadline.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("ask defer failed")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		answer, err := b.askai.Answer(ctx, talkgroupID, question)
		if err != nil {
			b.log.Warn().Err(err).Str("talkgroup", talkgroupID).Msg("ask-ai failed")
			answer = "Sorry, I could not answer that right now."
		}
		embeds := []*discordgo.MessageEmbed{{
			Title:       "Ask AI — talkgroup " + talkgroupID,
			Description: answer,
			Color:       embedColor,
		}}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
			b.log.Warn().Err(err).Msg("ask-ai response edit failed")
		}
	}()
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// modalInput digs a text input's value out of a modal submission.
func modalInput(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if ti, ok := comp.(*discordgo.TextInput); ok && ti.CustomID == customID {
				return strings.TrimSpace(ti.Value)
			}
		}
	}
	return ""
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
