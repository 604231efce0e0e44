// Package character loads the agent's persona file. The agent only reads
// its name, greeting and look-around arc; everything else is kept opaque
// for the backend's decision layer.
package character

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// DefaultLookAroundArc is the idle look-around half-arc in degrees.
const DefaultLookAroundArc = 45.0

// Character is a loaded persona.
type Character struct {
	Name          string   `json:"name" yaml:"name"`
	Greeting      string   `json:"greeting,omitempty" yaml:"greeting,omitempty"`
	Personality   string   `json:"personality,omitempty" yaml:"personality,omitempty"`
	LookAroundArc float64  `json:"look_around_arc,omitempty" yaml:"look_around_arc,omitempty"`
	IdlePhrases   []string `json:"idle_phrases,omitempty" yaml:"idle_phrases,omitempty"`

	// Extra holds every other top-level field untouched.
	Extra map[string]any `json:"-" yaml:",inline"`
}

var knownKeys = []string{"name", "greeting", "personality", "look_around_arc", "idle_phrases"}

// Default returns a minimal persona called name.
func Default(name string) *Character {
	c := &Character{Name: name}
	c.applyDefaults()
	return c
}

// Load reads a YAML (.yaml, .yml) or JSON5 character file.
func Load(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character: %w", err)
	}

	var c Character
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse character %s: %w", path, err)
		}
	default:
		if err := json5.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse character %s: %w", path, err)
		}
		var all map[string]any
		if err := json5.Unmarshal(data, &all); err == nil {
			for _, k := range knownKeys {
				delete(all, k)
			}
			if len(all) > 0 {
				c.Extra = all
			}
		}
	}

	if c.Name == "" {
		return nil, fmt.Errorf("character %s: name is required", path)
	}
	if c.LookAroundArc < 0 || c.LookAroundArc > 180 {
		return nil, fmt.Errorf("character %s: look_around_arc %.1f outside [0, 180]", path, c.LookAroundArc)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Character) applyDefaults() {
	if c.Greeting == "" {
		c.Greeting = "Hello {player}! I'm " + c.Name + "."
	}
	if c.LookAroundArc == 0 {
		c.LookAroundArc = DefaultLookAroundArc
	}
}

// GreetingFor renders the greeting for a player; "{player}" is replaced by
// the player's name, or "there" when it is unknown.
func (c *Character) GreetingFor(player string) string {
	if player == "" {
		player = "there"
	}
	return strings.ReplaceAll(c.Greeting, "{player}", player)
}
