package discord_bot

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var token string

// errorEdit replaces the deferred response with the error message.
func errorEdit(bot *discordgo.Session, i *discordgo.Interaction, err error) {
	errorString := sanitizeToken(fmt.Sprint(err))
	log.Printf("ERROR: %v", errorString)
	if user := i.Member; user != nil && user.User != nil {
		log.Printf("User: %v", user.User.Username)
	}

	_, _ = bot.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content: &errorString,
	})
}

func sanitizeToken(errorString string) string {
	if token == "" || !strings.Contains(errorString, token) {
		return errorString
	}
	log.Printf("WARNING: Bot token was found in the error message. Replacing it with \"[TOKEN]\"")
	return strings.ReplaceAll(errorString, token, "[TOKEN]")
}
