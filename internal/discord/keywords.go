package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/snarg/scanmap/internal/database"
)

// keywordCommands defines the /keyword command tree for alert keyword
// administration.
func keywordCommands() []*discordgo.ApplicationCommand {
	keywordOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "keyword",
		Description: "Keyword to match in transcriptions",
		Required:    true,
	}
	talkgroupOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "talkgroup",
		Description: "Restrict to one talkgroup id (default: all)",
	}
	return []*discordgo.ApplicationCommand{{
		Name:        "keyword",
		Description: "Manage alert keywords",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add an alert keyword",
				Options:     []*discordgo.ApplicationCommandOption{keywordOpt, talkgroupOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove an alert keyword",
				Options:     []*discordgo.ApplicationCommandOption{keywordOpt, talkgroupOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List alert keywords",
			},
		},
	}}
}

func (b *Bot) handleKeywordCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "keyword" || len(data.Options) == 0 {
		respondEphemeral(s, i, "Unknown command.")
		return
	}
	sub := data.Options[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch sub.Name {
	case "add":
		kw := subcommandKeyword(sub)
		if kw.Keyword == "" {
			respondEphemeral(s, i, "Keyword is required.")
			return
		}
		if err := b.db.AddKeyword(ctx, kw); err != nil {
			b.log.Error().Err(err).Str("keyword", kw.Keyword).Msg("keyword add failed")
			respondEphemeral(s, i, "Failed to add keyword.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Added alert keyword **%s**%s.", kw.Keyword, scopeSuffix(kw)))

	case "remove":
		kw := subcommandKeyword(sub)
		if err := b.db.RemoveKeyword(ctx, kw); err != nil {
			b.log.Error().Err(err).Str("keyword", kw.Keyword).Msg("keyword remove failed")
			respondEphemeral(s, i, "Failed to remove keyword.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Removed alert keyword **%s**%s.", kw.Keyword, scopeSuffix(kw)))

	case "list":
		kws, err := b.db.ListKeywords(ctx)
		if err != nil {
			b.log.Error().Err(err).Msg("keyword list failed")
			respondEphemeral(s, i, "Failed to list keywords.")
			return
		}
		if len(kws) == 0 {
			respondEphemeral(s, i, "No alert keywords configured.")
			return
		}
		var sb strings.Builder
		for _, kw := range kws {
			fmt.Fprintf(&sb, "• **%s**%s\n", kw.Keyword, scopeSuffix(kw))
		}
		respondEphemeral(s, i, sb.String())

	default:
		respondEphemeral(s, i, "Unknown subcommand.")
	}
}

func subcommandKeyword(sub *discordgo.ApplicationCommandInteractionDataOption) database.AlertKeyword {
	var kw database.AlertKeyword
	for _, opt := range sub.Options {
		switch opt.Name {
		case "keyword":
			kw.Keyword = strings.TrimSpace(strings.ToLower(opt.StringValue()))
		case "talkgroup":
			tg := strings.TrimSpace(opt.StringValue())
			if tg != "" {
				kw.TalkGroupID = &tg
			}
		}
	}
	return kw
}

func scopeSuffix(kw database.AlertKeyword) string {
	if kw.TalkGroupID == nil {
		return ""
	}
	return " (talkgroup " + *kw.TalkGroupID + ")"
}
