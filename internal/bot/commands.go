package bot

import "github.com/bwmarrin/discordgo"

func (b *Bot) registerCommands() error {
	manageGuild := int64(discordgo.PermissionManageServer)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "alert",
			Description: "Déclencher une alerte défense pour une guilde",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "guild_name",
					Description: "Nom de la guilde à alerter",
					Required:    false,
				},
			},
		},
		{
			Name:        "stats",
			Description: "Statistiques des alertes sur les 7 derniers jours",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "guild_name",
					Description: "Limiter les statistiques à une guilde",
					Required:    false,
				},
			},
		},
		{
			Name:                     "set_alerts_channel",
			Description:              "Définir le canal où les alertes sont envoyées",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Canal des alertes",
					Required:    true,
				},
			},
		},
		{
			Name:                     "guild",
			Description:              "Gérer les guildes enregistrées",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Ajouter une guilde",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Nom de la guilde",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "Rôle à mentionner lors des alertes",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "emoji",
							Description: "Emoji de la guilde",
							Required:    false,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cooldown_seconds",
							Description: "Cooldown spécifique en secondes",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "update",
					Description: "Mettre à jour une guilde",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Nom de la guilde",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "Rôle à mentionner lors des alertes",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "emoji",
							Description: "Emoji de la guilde",
							Required:    false,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cooldown_seconds",
							Description: "Cooldown spécifique en secondes",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Supprimer une guilde",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Nom de la guilde",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "Lister les guildes enregistrées",
				},
			},
		},
	}

	appID := b.session.State.User.ID
	scope := b.cfg.GuildID
	existing, err := b.session.ApplicationCommands(appID, scope)
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, scope, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, scope, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, scope, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, scope, cmd.ID)
	}

	return nil
}
