// Package config loads the agent's JSON5 or YAML configuration, applies
// defaults and HYPERFY_* environment overrides, and watches it for changes.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor HYPERFY_CONFIG is set.
const DefaultPath = "hyperfy-agent.json5"

// Config is the root configuration.
type Config struct {
	Agent       AgentConfig       `json:"agent" yaml:"agent"`
	Backend     BackendConfig     `json:"backend" yaml:"backend"`
	Reconnect   ReconnectConfig   `json:"reconnect" yaml:"reconnect"`
	Idle        IdleConfig        `json:"idle" yaml:"idle"`
	Interaction InteractionConfig `json:"interaction" yaml:"interaction"`
	Greeting    GreetingConfig    `json:"greeting" yaml:"greeting"`
	Movement    MovementConfig    `json:"movement" yaml:"movement"`
	Chat        ChatConfig        `json:"chat" yaml:"chat"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
}

type AgentConfig struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"` // derived from Name when empty
	Name      string `json:"name" yaml:"name"`
	Character string `json:"character,omitempty" yaml:"character,omitempty"` // character file path
}

type BackendConfig struct {
	URL              string      `json:"url" yaml:"url"`
	Token            string      `json:"token,omitempty" yaml:"token,omitempty"` // sent as a bearer header
	HandshakeTimeout Duration    `json:"handshake_timeout" yaml:"handshake_timeout"`
	RequireAck       bool        `json:"require_ack" yaml:"require_ack"`
	PingInterval     Duration    `json:"ping_interval" yaml:"ping_interval"`
	PongWait         Duration    `json:"pong_wait" yaml:"pong_wait"`
	WriteWait        Duration    `json:"write_wait" yaml:"write_wait"`
	SendBuffer       int         `json:"send_buffer" yaml:"send_buffer"`
	Probe            ProbeConfig `json:"probe" yaml:"probe"`
}

type ProbeConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	ShortCircuit bool     `json:"short_circuit" yaml:"short_circuit"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
}

type ReconnectConfig struct {
	Base        Duration `json:"base" yaml:"base"`
	Cap         Duration `json:"cap" yaml:"cap"`
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	JitterMin   float64  `json:"jitter_min" yaml:"jitter_min"`
	JitterMax   float64  `json:"jitter_max" yaml:"jitter_max"`
}

type IdleConfig struct {
	AnimationPeriod  Duration `json:"animation_period" yaml:"animation_period"`
	Dwell            Duration `json:"dwell" yaml:"dwell"`
	LookAroundPeriod Duration `json:"look_around_period" yaml:"look_around_period"`
	// LookAroundArc in degrees; 0 defers to the character file.
	LookAroundArc float64 `json:"look_around_arc,omitempty" yaml:"look_around_arc,omitempty"`
}

type InteractionConfig struct {
	Window Duration `json:"window" yaml:"window"`
}

type GreetingConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Duration  Duration `json:"duration" yaml:"duration"`
	Cooldown  Duration `json:"cooldown" yaml:"cooldown"` // per player
	CacheSize int      `json:"cache_size" yaml:"cache_size"`
}

type MovementConfig struct {
	SettleAfter Duration `json:"settle_after" yaml:"settle_after"`
}

type ChatConfig struct {
	RatePerMinute   int    `json:"rate_per_minute" yaml:"rate_per_minute"` // 0 (default) disables
	Burst           int    `json:"burst" yaml:"burst"`
	InjectionAction string `json:"injection_action" yaml:"injection_action"` // off|log|warn|block

	// Redis pub/sub chat bridge; empty URL disables it.
	RedisURL     string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	RedisChannel string `json:"redis_channel,omitempty" yaml:"redis_channel,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug|info|warn|error
	Format string `json:"format" yaml:"format"` // text|json
}

type MetricsConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"` // e.g. ":9464"; empty disables
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{Name: "Alice"},
		Backend: BackendConfig{
			URL:              "ws://localhost:8080",
			HandshakeTimeout: Duration(30 * time.Second),
			RequireAck:       true,
			PingInterval:     Duration(30 * time.Second),
			PongWait:         Duration(60 * time.Second),
			WriteWait:        Duration(10 * time.Second),
			SendBuffer:       256,
			Probe: ProbeConfig{
				Enabled:      true,
				ShortCircuit: true,
				Timeout:      Duration(3 * time.Second),
			},
		},
		Reconnect: ReconnectConfig{
			Base:        Duration(5 * time.Second),
			Cap:         Duration(60 * time.Second),
			MaxAttempts: 10,
			JitterMin:   0.9,
			JitterMax:   1.1,
		},
		Idle: IdleConfig{
			AnimationPeriod:  Duration(45 * time.Second),
			Dwell:            Duration(5 * time.Second),
			LookAroundPeriod: Duration(25 * time.Second),
		},
		Interaction: InteractionConfig{Window: Duration(60 * time.Second)},
		Greeting: GreetingConfig{
			Enabled:   true,
			Duration:  Duration(3 * time.Second),
			Cooldown:  Duration(5 * time.Minute),
			CacheSize: 256,
		},
		Movement: MovementConfig{SettleAfter: Duration(5 * time.Second)},
		Chat:     ChatConfig{Burst: 5, InjectionAction: "warn", RedisChannel: "hyperfy:chat"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides
// and validates. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config text (JSON5 unless format is "yaml").
func Parse(raw []byte, format string) (*Config, error) {
	cfg := Default()
	name := "config.json5"
	if format == "yaml" {
		name = "config.yaml"
	}
	if err := decode(name, raw, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// ApplyEnv overlays HYPERFY_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HYPERFY_AGENT_ID", &c.Agent.ID)
	str("HYPERFY_AGENT_NAME", &c.Agent.Name)
	str("HYPERFY_CHARACTER", &c.Agent.Character)
	str("HYPERFY_BACKEND_URL", &c.Backend.URL)
	str("HYPERFY_BACKEND_TOKEN", &c.Backend.Token)
	str("HYPERFY_LOG_LEVEL", &c.Logging.Level)
	str("HYPERFY_LOG_FORMAT", &c.Logging.Format)
	str("HYPERFY_METRICS_LISTEN", &c.Metrics.Listen)
	str("HYPERFY_CHAT_REDIS_URL", &c.Chat.RedisURL)
	str("HYPERFY_OTEL_ENDPOINT", &c.Telemetry.Endpoint)

	if v, ok := lookup("HYPERFY_OTEL_ENDPOINT"); ok && v != "" {
		c.Telemetry.Enabled = true
	}
	if v, ok := lookup("HYPERFY_REQUIRE_ACK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HYPERFY_REQUIRE_ACK: %w", err)
		}
		c.Backend.RequireAck = b
	}
	if v, ok := lookup("HYPERFY_MAX_RECONNECT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYPERFY_MAX_RECONNECT_ATTEMPTS: %w", err)
		}
		c.Reconnect.MaxAttempts = n
	}
	return nil
}

func (c *Config) normalize() {
	if c.Agent.ID == "" {
		c.Agent.ID = NormalizeAgentID(c.Agent.Name)
	} else {
		c.Agent.ID = NormalizeAgentID(c.Agent.ID)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	} else if !strings.HasPrefix(c.Backend.URL, "ws://") && !strings.HasPrefix(c.Backend.URL, "wss://") {
		errs = append(errs, fmt.Errorf("backend.url must be ws:// or wss://, got %q", c.Backend.URL))
	}
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, errors.New("reconnect.max_attempts must be at least 1"))
	}
	if c.Reconnect.Base <= 0 || c.Reconnect.Cap < c.Reconnect.Base {
		errs = append(errs, errors.New("reconnect.base must be positive and not above reconnect.cap"))
	}
	if c.Reconnect.JitterMin <= 0 || c.Reconnect.JitterMax < c.Reconnect.JitterMin {
		errs = append(errs, errors.New("reconnect jitter range is invalid"))
	}
	for name, d := range map[string]Duration{
		"backend.handshake_timeout": c.Backend.HandshakeTimeout,
		"backend.ping_interval":     c.Backend.PingInterval,
		"backend.pong_wait":         c.Backend.PongWait,
		"idle.animation_period":     c.Idle.AnimationPeriod,
		"idle.look_around_period":   c.Idle.LookAroundPeriod,
		"interaction.window":        c.Interaction.Window,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Backend.PongWait <= c.Backend.PingInterval {
		errs = append(errs, errors.New("backend.pong_wait must exceed backend.ping_interval"))
	}
	if c.Idle.LookAroundArc < 0 || c.Idle.LookAroundArc > 180 {
		errs = append(errs, errors.New("idle.look_around_arc must be within [0, 180]"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug|info|warn|error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}
	switch c.Chat.InjectionAction {
	case "", "off", "log", "warn", "block":
	default:
		errs = append(errs, fmt.Errorf("chat.injection_action %q is not one of off|log|warn|block", c.Chat.InjectionAction))
	}
	if c.Chat.RedisURL != "" {
		if !strings.HasPrefix(c.Chat.RedisURL, "redis://") && !strings.HasPrefix(c.Chat.RedisURL, "rediss://") {
			errs = append(errs, fmt.Errorf("chat.redis_url must be redis:// or rediss://"))
		}
		if c.Chat.RedisChannel == "" {
			errs = append(errs, errors.New("chat.redis_channel is required with chat.redis_url"))
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	return errors.Join(errs...)
}

// Hash fingerprints the effective config.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// MaskedCopy returns a copy safe to print.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.Backend.Token = maskSecret(c.Backend.Token)
	cp.Chat.RedisURL = maskURLPassword(c.Chat.RedisURL)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	return &cp
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	default:
		return "****"
	}
}

// maskURLPassword hides the password of a URL's userinfo.
func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
