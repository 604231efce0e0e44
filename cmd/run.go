package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/agent"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/character"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/chat"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/config"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/metrics"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/tracing"
)

func runCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and run the agent",
		Long: `Run the agent until interrupted.

Examples:
  hyperfy-agent run                          # Headless
  hyperfy-agent run -i                       # With a console for chat and commands
  hyperfy-agent run -c alice.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), interactive)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read chat and console commands from stdin")
	return cmd
}

func runAgent(parent context.Context, interactive bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Logging)

	var char *character.Character
	if cfg.Agent.Character != "" {
		if char, err = character.Load(cfg.Agent.Character); err != nil {
			return fmt.Errorf("load character: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		provider, err := tracing.Setup(ctx, tracing.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			ServiceName: cfg.Telemetry.ServiceName,
			Headers:     cfg.Telemetry.Headers,
		}, Version)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			slog.Info("OpenTelemetry OTLP export enabled", "endpoint", cfg.Telemetry.Endpoint, "protocol", cfg.Telemetry.Protocol)
			defer shutdownWithin(5*time.Second, provider.Shutdown)
		}
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Listen != "" {
		rec = metrics.New(nil)
		srv := serveMetrics(cfg.Metrics.Listen, rec)
		defer shutdownWithin(5*time.Second, srv.Shutdown)
	}

	hub := chat.NewHub(64)
	defer hub.Close()
	var feed chat.Feed = hub
	if cfg.Chat.RedisURL != "" {
		rf, err := chat.DialRedisFeed(cfg.Chat.RedisURL, cfg.Chat.RedisChannel)
		if err != nil {
			return err
		}
		defer rf.Close()
		feed = chat.Merge(hub, rf)
	}

	a, err := agent.New(agent.Options{
		Config:    cfg,
		Character: char,
		Feed:      feed,
		Metrics:   rec,
		OnExhausted: func(failures int, last error) {
			fmt.Fprintf(os.Stderr, "Backend unreachable after %d attempts (last error: %v).\n", failures, last)
			fmt.Fprintln(os.Stderr, "The agent keeps idling. Use /reconnect in the console or restart once the backend is up.")
		},
	})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		a.Stop()
		return err
	}
	defer a.Stop()

	if w := watchConfig(ctx, a); w != nil {
		defer w.Stop()
	}

	if interactive {
		go func() {
			runConsole(ctx, a, hub, os.Stdin, os.Stderr)
			stop()
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func serveMetrics(addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}

// watchConfig reloads the config file on change and hands it to the agent.
func watchConfig(ctx context.Context, a *agent.Agent) *config.Watcher {
	w, err := config.NewWatcher(resolveConfigPath())
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
		return nil
	}
	w.OnChange(func(next *config.Config) {
		if logLevel != "" {
			next.Logging.Level = logLevel
		}
		if logFormat != "" {
			next.Logging.Format = logFormat
		}
		setupLogging(next.Logging)
		if err := a.ApplyConfig(ctx, next); err != nil {
			slog.Warn("config reload not applied", "error", err)
		}
	})
	if err := w.Start(); err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
		w.Stop()
		return nil
	}
	return w
}

func shutdownWithin(d time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("shutdown", "error", err)
	}
}
