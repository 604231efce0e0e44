package chat

import (
	"fmt"
	"log/slog"
	"regexp"
)

// GuardAction decides what happens to chat that looks like a prompt
// injection aimed at the backend's language model.
type GuardAction string

const (
	GuardOff   GuardAction = "off"
	GuardLog   GuardAction = "log"
	GuardWarn  GuardAction = "warn" // default
	GuardBlock GuardAction = "block"
)

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// Guard screens chat before it is forwarded as VOICE_INPUT.
type Guard struct {
	action   GuardAction
	patterns []guardPattern
}

// NewGuard builds a guard; unknown actions behave like GuardWarn.
func NewGuard(action GuardAction) *Guard {
	switch action {
	case GuardOff, GuardLog, GuardWarn, GuardBlock:
	default:
		action = GuardWarn
	}
	return &Guard{action: action, patterns: injectionPatterns}
}

var injectionPatterns = []guardPattern{
	{"ignore_instructions", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|rules?|prompts?)`)},
	{"role_override", regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are)\s+`)},
	{"system_tags", regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`)},
	{"instruction_injection", regexp.MustCompile(`(?i)(new instructions?:|system prompt:|<\|system\|>)`)},
	{"null_bytes", regexp.MustCompile(`\x00`)},
}

// Scan returns the names of matched patterns.
func (g *Guard) Scan(body string) []string {
	if body == "" || g.action == GuardOff {
		return nil
	}
	var hits []string
	for _, p := range g.patterns {
		if p.pattern.MatchString(body) {
			hits = append(hits, p.name)
		}
	}
	return hits
}

// Check logs suspicious chat according to the action and returns an error
// only when the record must not be forwarded.
func (g *Guard) Check(rec Record) error {
	hits := g.Scan(rec.Body)
	if len(hits) == 0 {
		return nil
	}
	switch g.action {
	case GuardLog:
		slog.Info("chat: suspicious input", "from", rec.FromID, "patterns", hits)
	case GuardBlock:
		slog.Warn("chat: blocked suspicious input", "from", rec.FromID, "patterns", hits)
		return fmt.Errorf("chat from %s blocked: %v", rec.FromID, hits)
	default:
		slog.Warn("chat: suspicious input", "from", rec.FromID, "patterns", hits)
	}
	return nil
}
