package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly restricts the command to the bot owner (telegram.admin_id).
	AdminOnly bool
	Hidden    bool
	// Aliases are extra endpoints, with or without the leading slash.
	Aliases []string
}

// Endpoints returns the canonical name followed by its slash-prefixed aliases,
// each endpoint once.
func (c Command) Endpoints(name string) []string {
	out := []string{name}
	seen := map[string]struct{}{name: {}}
	for _, a := range c.Aliases {
		if a == "" {
			continue
		}
		if a[0] != '/' {
			a = "/" + a
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
