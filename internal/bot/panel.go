package bot

import (
	"context"
	"time"

	"defense-alert/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// The panel holds at most a full component grid, five rows of five buttons.
const maxPanelButtons = 25

func (b *Bot) startPanelLoop() {
	if b.cfg.PingDefChannelID == "" {
		b.logger.Info("panel disabled, no ping channel configured")
		return
	}
	go func() {
		b.refreshPanel(context.Background())
		ticker := time.NewTicker(b.cfg.PanelRefresh())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.refreshPanel(context.Background())
			case <-b.panelStop:
				return
			}
		}
	}()
}

// refreshPanel rebuilds the pinned alert panel, reusing the previous panel message when
// one survives in the channel history.
func (b *Bot) refreshPanel(ctx context.Context) {
	guilds, err := b.registry.List(ctx)
	if err != nil {
		b.logger.Warn("panel refresh skipped", zap.Error(err))
		return
	}

	embed := b.buildPanelEmbed(len(guilds))
	components := b.buildPanelButtons(guilds)
	channelID := b.cfg.PingDefChannelID

	b.panelMu.Lock()
	defer b.panelMu.Unlock()

	if b.panelMessageID == "" {
		b.panelMessageID = b.findPanelMessage(channelID, embed.Title)
	}

	if b.panelMessageID != "" {
		_, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    channelID,
			ID:         b.panelMessageID,
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		})
		if err == nil {
			return
		}
		b.logger.Warn("panel edit failed, recreating", zap.Error(err))
		b.panelMessageID = ""
	}

	msg, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
		b.logger.Warn("panel send failed", zap.Error(err))
		return
	}
	b.panelMessageID = msg.ID
	_ = b.session.ChannelMessagePin(channelID, msg.ID)
}

func (b *Bot) findPanelMessage(channelID, title string) string {
	messages, err := b.session.ChannelMessages(channelID, 50, "", "", "")
	if err != nil {
		return ""
	}
	botID := ""
	if b.session.State != nil && b.session.State.User != nil {
		botID = b.session.State.User.ID
	}
	for _, msg := range messages {
		if msg.Author == nil || msg.Author.ID != botID {
			continue
		}
		if len(msg.Embeds) > 0 && msg.Embeds[0].Title == title {
			return msg.ID
		}
	}
	return ""
}

func (b *Bot) buildPanelEmbed(guildCount int) *discordgo.MessageEmbed {
	description := "Cliquez sur le bouton de votre guilde pour déclencher une alerte défense.\n" +
		"Le rôle de la guilde sera mentionné dans le canal d'alerte."
	if guildCount == 0 {
		description = "Aucune guilde enregistrée. Utilisez `/guild add` pour en ajouter une."
	}
	return &discordgo.MessageEmbed{
		Title:       "⚔️ Panneau d'Alerte Défense",
		Description: description,
		Color:       colorAlert,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Alerte Défense"},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func (b *Bot) buildPanelButtons(guilds []storage.Guild) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for i, guild := range guilds {
		if i >= maxPanelButtons {
			break
		}
		button := discordgo.Button{
			Label:    guild.Name,
			Style:    discordgo.DangerButton,
			CustomID: alertButtonPrefix + guild.Name,
		}
		if guild.Emoji != "" {
			button.Emoji = parseEmoji(guild.Emoji)
		}
		row = append(row, button)
		if len(row) == 5 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}
