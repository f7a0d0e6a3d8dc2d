package bot

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorAlert = 0xE74C3C
	colorInfo  = 0x3498DB
	colorOK    = 0x2ECC71
	colorError = 0x992D22
)

var alertTemplates = []string{
	"🚨 {role} go def !",
	"⚔️ {role}, il est temps de défendre !",
	"🛡️ {role} Défendez votre guilde !",
	"💥 {role} est attaquée ! Rejoignez la défense !",
	"⚠️ {role}, mobilisez votre équipe pour défendre !",
	"🏹 Appel urgent pour {role} : la défense a besoin de vous !",
	"🔔 {role}, votre présence est cruciale pour la défense !",
}

func alertMessage(roleID string) string {
	template := alertTemplates[rand.Intn(len(alertTemplates))]
	return strings.ReplaceAll(template, "{role}", "<@&"+roleID+">")
}

func formatRemaining(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

// parseEmoji turns a stored emoji string into a component emoji. Custom emojis arrive
// as <:name:id> or <a:name:id>, anything else is treated as a plain unicode emoji.
func parseEmoji(raw string) discordgo.ComponentEmoji {
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") {
		body := strings.Trim(raw, "<>")
		animated := strings.HasPrefix(body, "a:")
		body = strings.TrimPrefix(body, "a")
		parts := strings.Split(strings.TrimPrefix(body, ":"), ":")
		if len(parts) == 2 {
			return discordgo.ComponentEmoji{Name: parts[0], ID: parts[1], Animated: animated}
		}
	}
	return discordgo.ComponentEmoji{Name: raw}
}
