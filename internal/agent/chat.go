package agent

import (
	"log/slog"
	"strings"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/chat"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/state"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/world"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

func (a *Agent) pumpChat(records <-chan chat.Record) {
	defer a.wg.Done()
	for rec := range records {
		if !a.loop.Post(func() { a.handleChat(rec) }) {
			return
		}
	}
}

// handleChat records human chat, marks the interaction and forwards it to
// the backend. The agent's own lines are ignored.
func (a *Agent) handleChat(rec chat.Record) {
	if rec.FromID == a.id {
		return
	}
	body := strings.TrimSpace(rec.Body)
	if body == "" {
		return
	}

	at := a.tracker.Mark()
	a.state.LastInteractionAt = at
	a.state.Chat.Append(state.ChatEntry{Sender: rec.From, Text: body, Timestamp: at})

	if err := a.guard.Check(rec); err != nil {
		return
	}
	if !a.limiter.Allow(rec.FromID) {
		return
	}
	a.say(body)
}

// PlayerArrived greets a player who came near, unless the agent is busy
// with a conversation or greeted them recently.
func (a *Agent) PlayerArrived(playerID, playerName string) {
	a.loop.Post(func() { a.greet(playerID, playerName) })
}

// worldChanged runs on the event loop, inside PHYSICS_UPDATE handling.
func (a *Agent) worldChanged(change world.Change, obj world.Object) {
	if change == world.Added && obj.Type == world.TypePlayer {
		a.greet(obj.ID, obj.Name())
	}
}

func (a *Agent) greet(playerID, playerName string) {
	if !a.cfg.Greeting.Enabled || playerID == "" || playerID == a.id {
		return
	}
	if a.tracker.IsInteracting() {
		slog.Debug("agent: skip greeting, interacting", "player", playerID)
		return
	}
	if a.greeted.Contains(playerID) {
		slog.Debug("agent: skip greeting, greeted recently", "player", playerID)
		return
	}
	a.greeted.Add(playerID, struct{}{})

	a.state.LastInteractionAt = a.tracker.Mark()
	a.greeting = true
	a.evaluate()

	a.greetTask.Cancel()
	a.greetTask = a.loop.After(a.cfg.Greeting.Duration.Std(), func() {
		a.greetTask = nil
		a.greeting = false
		a.evaluate()
	})

	slog.Info("agent: greeting player", "player", playerID, "name", playerName)
	a.say(a.char.GreetingFor(playerName))
}

func (a *Agent) say(text string) {
	if err := a.conn.Send(protocol.TypeVoiceInput, protocol.NewVoiceInput(text)); err != nil {
		slog.Debug("agent: voice input not sent", "error", err)
	}
}
