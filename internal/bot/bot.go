package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"defense-alert/internal/config"
	"defense-alert/internal/cooldown"
	"defense-alert/internal/dispatch"
	"defense-alert/internal/registry"
	"defense-alert/internal/stats"
	"defense-alert/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      storage.Store
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	stats      *stats.Service
	session    *discordgo.Session

	panelMu        sync.Mutex
	panelMessageID string
	panelStop      chan struct{}
}

func New(cfg config.Config, logger *zap.Logger, store storage.Store, reg *registry.Registry, cooldowns *cooldown.Tracker, statsService *stats.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent |
		discordgo.IntentsDirectMessages

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		registry:  reg,
		stats:     statsService,
		session:   session,
		panelStop: make(chan struct{}),
	}
	b.dispatcher = dispatch.New(reg, cooldowns, store, b, cfg.PingDefChannelID, cfg.AlerteDefChannelID, logger)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startPanelLoop()

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	close(b.panelStop)
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

// SendAlert posts the role ping and its embed to one alert channel.
func (b *Bot) SendAlert(ctx context.Context, channelID string, guild storage.Guild, requesterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🔔 Alerte envoyée !",
		Description: fmt.Sprintf("**<@%s>** a déclenché une alerte pour **%s** %s", requesterID, guild.Name, guild.Emoji),
		Color:       colorAlert,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📝 Notes", Value: "Aucune note.", Inline: false},
		},
	}
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: alertMessage(guild.RoleID),
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	return err
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		b.forwardDM(msg)
		return
	}

	content := strings.TrimSpace(msg.Content)
	switch {
	case strings.HasPrefix(content, "!alerte_guild"):
		b.handleAlerteGuild(session, msg, strings.TrimSpace(strings.TrimPrefix(content, "!alerte_guild")))
	case content == "!help":
		b.sendHelp(msg.ChannelID)
	}
}

func (b *Bot) handleAlerteGuild(session *discordgo.Session, msg *discordgo.MessageCreate, guildName string) {
	if guildName == "" {
		_, _ = session.ChannelMessageSend(msg.ChannelID, "Utilisation : `!alerte_guild <nom de la guilde>`")
		return
	}

	ctx := context.Background()
	result, err := b.dispatcher.Trigger(ctx, guildName, msg.Author.ID)
	if err != nil {
		_, _ = session.ChannelMessageSend(msg.ChannelID, b.triggerErrorMessage(ctx, guildName, err))
		return
	}
	reply := fmt.Sprintf("Alerte envoyée pour **%s** !", result.Guild.Name)
	if !result.Delivered() {
		reply = fmt.Sprintf("Alerte enregistrée pour **%s**, mais l'envoi a échoué sur au moins un canal.", result.Guild.Name)
	}
	_, _ = session.ChannelMessageSend(msg.ChannelID, reply)
}

func (b *Bot) triggerErrorMessage(ctx context.Context, guildName string, err error) string {
	var cooldownErr *dispatch.CooldownError
	switch {
	case errors.Is(err, dispatch.ErrUnknownGuild):
		names := b.knownGuildNames(ctx)
		if names == "" {
			return fmt.Sprintf("Guilde inconnue : **%s**.", guildName)
		}
		return fmt.Sprintf("Guilde inconnue : **%s**. Guildes disponibles : %s", guildName, names)
	case errors.As(err, &cooldownErr):
		return fmt.Sprintf("⏳ Une alerte pour **%s** a déjà été envoyée. Réessayez dans %s.", guildName, formatRemaining(cooldownErr.Remaining))
	default:
		b.logger.Error("alert trigger failed", zap.String("guild", guildName), zap.Error(err))
		return "L'alerte n'a pas pu être enregistrée. Réessayez dans un instant."
	}
}

func (b *Bot) knownGuildNames(ctx context.Context) string {
	guilds, err := b.registry.List(ctx)
	if err != nil || len(guilds) == 0 {
		return ""
	}
	names := make([]string, 0, len(guilds))
	for _, guild := range guilds {
		names = append(names, "`"+guild.Name+"`")
	}
	return strings.Join(names, ", ")
}

func (b *Bot) sendHelp(channelID string) {
	embed := &discordgo.MessageEmbed{
		Title: "📖 Commandes",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "!alerte_guild <nom>", Value: "Déclenche une alerte défense pour la guilde.", Inline: false},
			{Name: "/alert", Value: "Déclenche une alerte via commande slash.", Inline: false},
			{Name: "/stats", Value: "Statistiques des alertes (7 derniers jours).", Inline: false},
			{Name: "/set_alerts_channel", Value: "Définit le canal des alertes.", Inline: false},
			{Name: "/guild", Value: "Gestion des guildes (admin).", Inline: false},
		},
	}
	_, _ = b.session.ChannelMessageSendEmbed(channelID, embed)
}

func (b *Bot) forwardDM(msg *discordgo.MessageCreate) {
	if b.cfg.OwnerID == "" {
		return
	}
	channel, err := b.session.UserChannelCreate(b.cfg.OwnerID)
	if err != nil {
		b.logger.Warn("dm forward channel", zap.Error(err))
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📬 Message privé reçu",
		Description: msg.Content,
		Color:       colorInfo,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Auteur", Value: fmt.Sprintf("%s (`%s`)", msg.Author.Username, msg.Author.ID), Inline: true},
		},
	}
	for _, attachment := range msg.Attachments {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Pièce jointe", Value: attachment.URL, Inline: false})
	}
	if _, err := b.session.ChannelMessageSendEmbed(channel.ID, embed); err != nil {
		b.logger.Warn("dm forward failed", zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "Aucune réponse disponible.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}
