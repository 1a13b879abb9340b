// Package commands holds the metadata the registry keeps per slash command.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command handler plus how it is listed and guarded.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands reach Handler only for the configured admin.
	AdminOnly bool
	// Hidden commands work but are never listed.
	Hidden  bool
	Aliases []string
}

// Visible reports whether the command is listed to a user. The Telegram
// command menu is built with isAdmin false.
func (c Command) Visible(isAdmin bool) bool {
	return !c.Hidden && (!c.AdminOnly || isAdmin)
}
