package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"defense-alert/internal/dispatch"
	"defense-alert/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const alertButtonPrefix = "alert:"

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx := context.Background()

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		switch data.Name {
		case "alert":
			b.handleAlertCommand(ctx, session, interaction, data.Options)
		case "stats":
			b.handleStatsCommand(ctx, session, interaction, data.Options)
		case "set_alerts_channel":
			b.handleSetAlertsChannel(ctx, session, interaction, data.Options)
		case "guild":
			b.handleGuildCommand(ctx, session, interaction, data.Options)
		}
	case discordgo.InteractionMessageComponent:
		customID := interaction.MessageComponentData().CustomID
		if strings.HasPrefix(customID, alertButtonPrefix) {
			b.handleAlertButton(ctx, session, interaction, strings.TrimPrefix(customID, alertButtonPrefix))
		}
	}
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func (b *Bot) handleAlertCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		names := b.knownGuildNames(ctx)
		if names == "" {
			b.respond(session, interaction, "Aucune guilde enregistrée. Utilisez `/guild add` pour en ajouter une.", true)
			return
		}
		b.respond(session, interaction, "Précisez la guilde à alerter. Guildes disponibles : "+names, true)
		return
	}

	guildName := options[0].StringValue()
	b.triggerAndRespond(ctx, session, interaction, guildName)
}

func (b *Bot) handleAlertButton(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, guildName string) {
	b.triggerAndRespond(ctx, session, interaction, guildName)
}

func (b *Bot) triggerAndRespond(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, guildName string) {
	result, err := b.dispatcher.Trigger(ctx, guildName, interactionUserID(interaction))
	if err != nil {
		b.respond(session, interaction, b.triggerErrorMessage(ctx, guildName, err), true)
		return
	}
	if !result.Delivered() {
		b.respond(session, interaction, fmt.Sprintf("Alerte enregistrée pour **%s**, mais l'envoi a échoué sur au moins un canal.", result.Guild.Name), true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Alerte envoyée à **%s** dans le canal d'alerte !", result.Guild.Name), true)
}

func (b *Bot) handleStatsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	guildName := ""
	if len(options) > 0 {
		resolved, err := b.registry.Resolve(ctx, options[0].StringValue())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b.respond(session, interaction, fmt.Sprintf("Guilde inconnue : **%s**.", options[0].StringValue()), true)
				return
			}
			b.logger.Warn("stats resolve failed", zap.Error(err))
			b.respond(session, interaction, "Statistiques indisponibles pour le moment.", true)
			return
		}
		guildName = resolved.Name
	}

	since := time.Now().AddDate(0, 0, -7)
	summaries, err := b.stats.Summarize(ctx, guildName, since)
	if err != nil {
		b.logger.Warn("stats query failed", zap.Error(err))
		b.respond(session, interaction, "Statistiques indisponibles pour le moment.", true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:     "📊 Statistiques des alertes (7 jours)",
		Color:     colorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if len(summaries) == 0 {
		embed.Description = "Aucune alerte sur la période."
		b.respondEmbed(session, interaction, embed, true)
		return
	}

	if guildName != "" {
		summary := summaries[0]
		days := make([]string, 0, len(summary.ByDay))
		for day := range summary.ByDay {
			days = append(days, day)
		}
		sort.Strings(days)
		lines := make([]string, 0, len(days))
		for _, day := range days {
			lines = append(lines, fmt.Sprintf("%s : %d", day, summary.ByDay[day]))
		}
		embed.Description = fmt.Sprintf("**%s**", summary.GuildName)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Alertes", Value: fmt.Sprintf("%d", summary.Total), Inline: true},
			{Name: "Membres uniques", Value: fmt.Sprintf("%d", summary.UniqueMembers), Inline: true},
			{Name: "Par jour", Value: strings.Join(lines, "\n"), Inline: false},
		}
		b.respondEmbed(session, interaction, embed, true)
		return
	}

	for i, summary := range summaries {
		if i >= 24 {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   summary.GuildName,
			Value:  fmt.Sprintf("Alertes : %d\nMembres uniques : %d", summary.Total, summary.UniqueMembers),
			Inline: true,
		})
	}
	if report, err := b.stats.Report(ctx, since, 5); err == nil && len(report.TopMembers) > 0 {
		lines := make([]string, 0, len(report.TopMembers))
		for _, member := range report.TopMembers {
			lines = append(lines, fmt.Sprintf("<@%s> : %d", member.UserID, member.Count))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Membres les plus actifs",
			Value:  strings.Join(lines, "\n"),
			Inline: false,
		})
	}
	b.respondEmbed(session, interaction, embed, true)
}

func (b *Bot) handleSetAlertsChannel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respond(session, interaction, "Précisez le canal des alertes.", true)
		return
	}
	channel := options[0].ChannelValue(session)
	if channel == nil {
		b.respond(session, interaction, "Canal introuvable.", true)
		return
	}
	if err := b.store.SetSetting(ctx, dispatch.SettingAlerteDefChannel, channel.ID); err != nil {
		b.logger.Warn("alerts channel update failed", zap.Error(err))
		b.respond(session, interaction, "Impossible d'enregistrer le canal. Réessayez.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Canal des alertes défini sur <#%s>.", channel.ID), true)
}

func (b *Bot) handleGuildCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respond(session, interaction, "Sous-commande manquante.", true)
		return
	}
	sub := options[0]

	switch sub.Name {
	case "add", "update":
		b.handleGuildUpsert(ctx, session, interaction, sub)
	case "remove":
		name := sub.Options[0].StringValue()
		if err := b.registry.Remove(ctx, name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b.respond(session, interaction, fmt.Sprintf("Guilde inconnue : **%s**.", name), true)
				return
			}
			b.logger.Warn("guild remove failed", zap.Error(err))
			b.respond(session, interaction, "La suppression a échoué. Réessayez.", true)
			return
		}
		go b.refreshPanel(context.Background())
		b.respond(session, interaction, fmt.Sprintf("Guilde **%s** supprimée.", name), true)
	case "list":
		guilds, err := b.registry.List(ctx)
		if err != nil {
			b.logger.Warn("guild list failed", zap.Error(err))
			b.respond(session, interaction, "La liste des guildes est indisponible.", true)
			return
		}
		if len(guilds) == 0 {
			b.respond(session, interaction, "Aucune guilde enregistrée.", true)
			return
		}
		lines := make([]string, 0, len(guilds))
		for _, guild := range guilds {
			line := fmt.Sprintf("%s **%s** : <@&%s>", guild.Emoji, guild.Name, guild.RoleID)
			if guild.CooldownSeconds > 0 {
				line += fmt.Sprintf(" (cooldown %ds)", guild.CooldownSeconds)
			}
			lines = append(lines, line)
		}
		embed := &discordgo.MessageEmbed{
			Title:       "🏰 Guildes enregistrées",
			Description: strings.Join(lines, "\n"),
			Color:       colorOK,
		}
		b.respondEmbed(session, interaction, embed, true)
	}
}

func (b *Bot) handleGuildUpsert(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	guild := storage.Guild{}
	for _, option := range sub.Options {
		switch option.Name {
		case "name":
			guild.Name = option.StringValue()
		case "role":
			if role := option.RoleValue(session, interaction.GuildID); role != nil {
				guild.RoleID = role.ID
			}
		case "emoji":
			guild.Emoji = option.StringValue()
		case "cooldown_seconds":
			guild.CooldownSeconds = int(option.IntValue())
		}
	}
	if guild.Name == "" || guild.RoleID == "" {
		b.respond(session, interaction, "Nom et rôle sont obligatoires.", true)
		return
	}

	if err := b.registry.Register(ctx, guild); err != nil {
		b.logger.Warn("guild upsert failed", zap.Error(err))
		b.respond(session, interaction, "L'enregistrement a échoué. Réessayez.", true)
		return
	}
	go b.refreshPanel(context.Background())
	b.respond(session, interaction, fmt.Sprintf("Guilde **%s** enregistrée.", guild.Name), true)
}
