package config

import (
	"regexp"
	"strings"
)

const DefaultAgentID = "agent"

const maxAgentIDLen = 64

var validIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// NormalizeAgentID turns a display name into the id announced in HELLO and
// used to recognise the agent's own chat: lowercase [a-z0-9_-], at most 64
// characters, runs of other characters collapsed to "-". An empty result
// becomes DefaultAgentID.
func NormalizeAgentID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if validIDRe.MatchString(lower) {
		return lower
	}

	var b strings.Builder
	dash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	id := strings.TrimRight(b.String(), "-")
	if len(id) > maxAgentIDLen {
		id = strings.TrimRight(id[:maxAgentIDLen], "-")
	}
	if id == "" {
		return DefaultAgentID
	}
	return id
}
