// Package agent assembles a Hyperfy agent: one event loop owning the
// agent's state, its backend connection, the animation machine, idle
// behavior, chat and greetings.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/animation"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/backoff"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/character"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/chat"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/config"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/connection"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/idle"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/interaction"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/loop"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/metrics"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/router"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/state"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/world"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

var (
	ErrNotStarted     = errors.New("agent not started")
	ErrAlreadyStarted = errors.New("agent already started")
)

// Options wires an agent. Only Config is required.
type Options struct {
	Config    *config.Config
	Character *character.Character // nil: a default persona named Config.Agent.Name

	Clock     clock.Clock          // nil: wall clock
	Transport connection.Transport // nil: websocket dialer built from Config
	Feed      chat.Feed            // nil: no chat
	Metrics   *metrics.Recorder
	Rand      *rand.Rand

	Actuator Actuator
	Audio    AudioPlayer
	Physics  PhysicsSink // nil: an in-memory world mirror that greets arriving players
	Content  ContentSink

	// OnExhausted runs on the event loop when reconnecting is given up.
	OnExhausted func(failures int, last error)
}

// Agent is safe for concurrent use; every public method hops onto the
// event loop.
type Agent struct {
	cfg  *config.Config
	char *character.Character
	id   string

	loop       *loop.Loop
	clock      clock.Clock
	state      *state.AgentState
	machine    *animation.Machine
	reconciler *state.Reconciler
	tracker    *interaction.Tracker
	idle       *idle.Scheduler
	conn       *connection.Manager
	router     *router.Router
	limiter    *chat.Limiter
	guard      *chat.Guard
	greeted    *expirable.LRU[string, struct{}]
	feed       chat.Feed
	metrics    *metrics.Recorder
	rnd        *rand.Rand

	actuator Actuator
	audio    AudioPlayer
	physics  PhysicsSink
	content  ContentSink
	world    *world.World // nil when Options.Physics is set

	onExhausted func(int, error)
	ownsDialer  bool

	// loop-owned
	home       protocol.Quaternion
	greeting   bool
	greetTask  *loop.Task
	settleTask *loop.Task
	exhausted  bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a stopped agent.
func New(opts Options) (*Agent, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("agent: config is required")
	}
	char := opts.Character
	if char == nil {
		char = character.Default(cfg.Agent.Name)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	a := &Agent{
		cfg:         cfg,
		char:        char,
		id:          cfg.Agent.ID,
		clock:       clk,
		loop:        loop.New(clk),
		state:       state.New(),
		machine:     animation.NewMachine(),
		tracker:     interaction.NewTracker(clk, cfg.Interaction.Window.Std()),
		limiter:     chat.NewLimiter(clk, cfg.Chat.RatePerMinute, cfg.Chat.Burst),
		guard:       chat.NewGuard(chat.GuardAction(cfg.Chat.InjectionAction)),
		greeted:     expirable.NewLRU[string, struct{}](greetCacheSize(cfg), nil, cfg.Greeting.Cooldown.Std()),
		feed:        opts.Feed,
		metrics:     opts.Metrics,
		rnd:         opts.Rand,
		actuator:    opts.Actuator,
		audio:       opts.Audio,
		physics:     opts.Physics,
		content:     opts.Content,
		onExhausted: opts.OnExhausted,
		home:        protocol.IdentityRotation,
	}
	if a.actuator == nil {
		a.actuator = logSurface{}
	}
	if a.audio == nil {
		a.audio = logSurface{}
	}
	if a.physics == nil {
		a.world = world.New(clk)
		a.world.OnChange(a.worldChanged)
		a.physics = a.world
	}
	if a.content == nil {
		a.content = logSurface{}
	}

	a.machine.OnChange = a.animationChanged
	a.reconciler = state.NewReconciler(a.state, (*effects)(a))
	a.router = router.New((*inbound)(a), a.metrics)
	a.idle = idle.New(a.loop, (*body)(a), idleConfig(cfg, char), a.rnd)

	transport := opts.Transport
	if transport == nil {
		transport = connection.NewDialer(DialerConfig(cfg, char))
		a.ownsDialer = true
	}
	a.conn = connection.NewManager(a.loop, transport, (*connEvents)(a), reconnectPolicy(cfg), connConfig(cfg), a.metrics)

	return a, nil
}

// World is the default physics mirror, or nil when a PhysicsSink was given.
func (a *Agent) World() *world.World { return a.world }

// ID is the id announced to the backend.
func (a *Agent) ID() string { return a.id }

// Start runs the event loop, starts idle behavior, opens the backend
// channel and subscribes to chat.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop.Run(runCtx)
	}()

	var openErr error
	err := a.loop.Do(ctx, func() {
		a.idle.Start()
		openErr = a.conn.Open(a.cfg.Backend.URL)
	})
	if err != nil {
		return err
	}
	if openErr != nil {
		return fmt.Errorf("open backend: %w", openErr)
	}

	if a.feed != nil {
		records, err := a.feed.Subscribe(runCtx)
		if err != nil {
			return fmt.Errorf("subscribe chat: %w", err)
		}
		a.wg.Add(1)
		go a.pumpChat(records)
	}

	slog.Info("agent: started", "id", a.id, "name", a.char.Name, "backend", a.cfg.Backend.URL)
	return nil
}

// Stop cancels every timer, closes the channel and ends the loop. It is
// safe to call more than once.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.loop.Do(ctx, a.shutdown); err != nil {
		slog.Warn("agent: shutdown did not run on the loop", "error", err)
	}
	a.cancel()
	a.loop.Stop()
	a.wg.Wait()
	slog.Info("agent: stopped", "id", a.id)
}

func (a *Agent) shutdown() {
	a.idle.Stop()
	a.greetTask.Cancel()
	a.settleTask.Cancel()
	a.greetTask, a.settleTask = nil, nil
	a.conn.Stop()
}

// Snapshot is a consistent copy of the agent's observable state.
type Snapshot struct {
	ID          string
	State       state.Snapshot
	Connection  connection.Status
	Interacting bool
	Greeting    bool
	IdleRunning bool
	Exhausted   bool
	Objects     int // mirrored world objects
	Players     int
}

func (a *Agent) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := a.do(ctx, func() {
		s = Snapshot{
			ID:          a.id,
			State:       a.state.Snapshot(),
			Connection:  a.conn.Status(),
			Interacting: a.tracker.IsInteracting(),
			Greeting:    a.greeting,
			IdleRunning: a.idle.Running(),
			Exhausted:   a.exhausted,
		}
		if a.world != nil {
			s.Objects = a.world.Len()
			s.Players = len(a.world.Players())
		}
	})
	return s, err
}

// Reconnect drops the current channel and opens target with a fresh retry
// budget. An empty target reuses the current one.
func (a *Agent) Reconnect(ctx context.Context, target string) error {
	var rerr error
	if err := a.do(ctx, func() {
		if target == "" {
			target = a.conn.Status().Target
		}
		if target == "" {
			target = a.cfg.Backend.URL
		}
		a.exhausted = false
		rerr = a.conn.Reconnect(target)
	}); err != nil {
		return err
	}
	return rerr
}

// ApplyConfig takes a reloaded config. Interaction, idle, greeting, movement
// and chat screening apply immediately; reconnect policy applies to the next
// retry; any backend change rebuilds the dialer and reconnects. Identity,
// the Redis bridge, metrics and telemetry are only logged as needing a
// restart.
func (a *Agent) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	return a.do(ctx, func() {
		prev := a.cfg
		a.cfg = cfg
		a.tracker.SetWindow(cfg.Interaction.Window.Std())

		if prev.Idle != cfg.Idle {
			running := a.idle.Running()
			a.idle.Stop()
			a.idle = idle.New(a.loop, (*body)(a), idleConfig(cfg, a.char), a.rnd)
			if running {
				a.idle.Start()
			}
		}
		if prev.Chat.RatePerMinute != cfg.Chat.RatePerMinute || prev.Chat.Burst != cfg.Chat.Burst {
			a.limiter = chat.NewLimiter(a.clock, cfg.Chat.RatePerMinute, cfg.Chat.Burst)
		}
		if prev.Chat.InjectionAction != cfg.Chat.InjectionAction {
			a.guard = chat.NewGuard(chat.GuardAction(cfg.Chat.InjectionAction))
		}
		if prev.Greeting.Cooldown != cfg.Greeting.Cooldown || prev.Greeting.CacheSize != cfg.Greeting.CacheSize {
			// recent greetings are forgotten
			a.greeted = expirable.NewLRU[string, struct{}](greetCacheSize(cfg), nil, cfg.Greeting.Cooldown.Std())
		}
		if prev.Reconnect != cfg.Reconnect || prev.Backend != cfg.Backend {
			var transport connection.Transport
			if a.ownsDialer {
				transport = connection.NewDialer(DialerConfig(cfg, a.char))
			}
			a.conn.Reconfigure(transport, reconnectPolicy(cfg), connConfig(cfg))
		}
		if prev.Backend != cfg.Backend {
			slog.Info("agent: backend settings changed, reconnecting", "from", prev.Backend.URL, "to", cfg.Backend.URL)
			a.exhausted = false
			if err := a.conn.Reconnect(cfg.Backend.URL); err != nil {
				slog.Error("agent: reconnect failed", "error", err)
			}
		}
		if sections := restartOnly(prev, cfg); len(sections) > 0 {
			slog.Warn("agent: config changes need a restart", "sections", sections)
		}
	})
}

// restartOnly names the changed sections that are read once at startup.
func restartOnly(prev, next *config.Config) []string {
	var out []string
	if prev.Agent != next.Agent {
		out = append(out, "agent")
	}
	if prev.Chat.RedisURL != next.Chat.RedisURL || prev.Chat.RedisChannel != next.Chat.RedisChannel {
		out = append(out, "chat.redis")
	}
	if prev.Metrics != next.Metrics {
		out = append(out, "metrics")
	}
	if !reflect.DeepEqual(prev.Telemetry, next.Telemetry) {
		out = append(out, "telemetry")
	}
	return out
}

// Arrived reports that the actuator finished the last movement.
func (a *Agent) Arrived() {
	a.loop.Post(func() {
		if !a.state.Moving {
			return
		}
		a.state.Moving = false
		a.settleTask.Cancel()
		a.settleTask = nil
		a.evaluate()
	})
}

// Act sends a one-off ACTION such as "rotate" or "emote" to the backend.
func (a *Agent) Act(ctx context.Context, action string, params map[string]any) error {
	var serr error
	if err := a.do(ctx, func() {
		serr = a.conn.Send(protocol.TypeAction, protocol.NewAction(uuid.NewString(), action, params))
	}); err != nil {
		return err
	}
	return serr
}

// Rotate turns the agent locally and makes the result its new home
// orientation.
func (a *Agent) Rotate(ctx context.Context, yawDeg float64) error {
	return a.do(ctx, func() {
		a.home = state.Mul(a.home, state.Yaw(yawDeg))
		a.setRotation(a.home)
	})
}

func (a *Agent) do(ctx context.Context, fn func()) error {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return a.loop.Do(ctx, fn)
}

// --- loop-side helpers ---

func (a *Agent) evaluate() {
	a.machine.Evaluate(a.state.Concerns(a.greeting))
}

func (a *Agent) animationChanged(prev, next animation.Name) {
	a.state.Animation = next
	a.actuator.PlayAnimation(next)
	a.metrics.AnimationTransition(string(next))
	slog.Debug("agent: animation", "from", prev, "to", next)
	a.pushState()
}

func (a *Agent) setRotation(rot protocol.Quaternion) {
	if rot == a.state.Rotation {
		return
	}
	a.state.Rotation = rot
	a.actuator.SetRotation(rot)
	a.pushState()
}

// pushState mirrors local state when the channel is up; otherwise the
// update is dropped and the next handshake sends the full state.
func (a *Agent) pushState() {
	if !a.conn.Connected() {
		return
	}
	frame := protocol.NewStateUpdate(a.state.Wire(a.tracker.IsInteracting()))
	if err := a.conn.Send(protocol.TypeStateUpdate, frame); err != nil {
		slog.Debug("agent: state update not sent", "error", err)
	}
}

func (a *Agent) armSettle() {
	after := a.cfg.Movement.SettleAfter.Std()
	if after <= 0 {
		return
	}
	a.settleTask.Cancel()
	a.settleTask = a.loop.After(after, func() {
		a.settleTask = nil
		if a.state.Moving {
			a.state.Moving = false
			a.evaluate()
		}
	})
}

// --- config mapping ---

func idleConfig(cfg *config.Config, char *character.Character) idle.Config {
	arc := cfg.Idle.LookAroundArc
	if arc <= 0 {
		arc = char.LookAroundArc
	}
	return idle.Config{
		AnimationPeriod:  cfg.Idle.AnimationPeriod.Std(),
		Dwell:            cfg.Idle.Dwell.Std(),
		LookAroundPeriod: cfg.Idle.LookAroundPeriod.Std(),
		LookAroundArc:    arc,
	}
}

func connConfig(cfg *config.Config) connection.Config {
	return connection.Config{
		PingInterval: cfg.Backend.PingInterval.Std(),
		PongWait:     cfg.Backend.PongWait.Std(),
		WriteWait:    cfg.Backend.WriteWait.Std(),
		SendBuffer:   cfg.Backend.SendBuffer,
	}
}

func reconnectPolicy(cfg *config.Config) backoff.Policy {
	return backoff.Policy{
		Base:        cfg.Reconnect.Base.Std(),
		Cap:         cfg.Reconnect.Cap.Std(),
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		JitterMin:   cfg.Reconnect.JitterMin,
		JitterMax:   cfg.Reconnect.JitterMax,
	}
}

// DialerConfig maps the backend section of cfg onto the websocket dialer.
func DialerConfig(cfg *config.Config, char *character.Character) connection.DialerConfig {
	var header http.Header
	if cfg.Backend.Token != "" {
		header = http.Header{"Authorization": {"Bearer " + cfg.Backend.Token}}
	}
	return connection.DialerConfig{
		AgentID:           cfg.Agent.ID,
		Name:              char.Name,
		HandshakeTimeout:  cfg.Backend.HandshakeTimeout.Std(),
		RequireAck:        cfg.Backend.RequireAck,
		Probe:             cfg.Backend.Probe.Enabled,
		ProbeShortCircuit: cfg.Backend.Probe.ShortCircuit,
		ProbeTimeout:      cfg.Backend.Probe.Timeout.Std(),
		Header:            header,
	}
}

func greetCacheSize(cfg *config.Config) int {
	if cfg.Greeting.CacheSize > 0 {
		return cfg.Greeting.CacheSize
	}
	return 256
}
