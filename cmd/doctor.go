package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/agent"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/character"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/connection"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	var skipDial bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, character and backend reachability",
		Run: func(cmd *cobra.Command, args []string) {
			if !runDoctor(cmd.Context(), skipDial) {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&skipDial, "offline", false, "skip the backend handshake check")
	return cmd
}

func runDoctor(ctx context.Context, offline bool) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Println("hyperfy-agent doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return false
	}
	fmt.Printf("  Agent:    %s (%s)\n", cfg.Agent.ID, cfg.Agent.Name)

	char := character.Default(cfg.Agent.Name)
	if cfg.Agent.Character != "" {
		loaded, err := character.Load(cfg.Agent.Character)
		if err != nil {
			fmt.Printf("  Character: %s (ERROR: %s)\n", cfg.Agent.Character, err)
			return false
		}
		char = loaded
		fmt.Printf("  Character: %s (%s)\n", cfg.Agent.Character, char.Name)
	}

	fmt.Println()
	fmt.Println("  Backend:")
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Backend.URL)
	if _, err := connection.ParseTarget(cfg.Backend.URL); err != nil {
		fmt.Printf("    %-12s %s\n", "Invalid:", err)
		return false
	}
	checkSetting("Token:", cfg.Backend.Token != "")
	checkSetting("Ack:", cfg.Backend.RequireAck)
	checkSetting("Metrics:", cfg.Metrics.Listen != "")
	checkSetting("Telemetry:", cfg.Telemetry.Enabled)

	if offline {
		fmt.Println()
		fmt.Println("Doctor check complete (offline).")
		return true
	}

	dialer := connection.NewDialer(agent.DialerConfig(cfg, char))
	start := time.Now()
	conn, err := dialer.Dial(ctx, cfg.Backend.URL, nil)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s): %s\n", "Handshake:", connection.KindOf(err), err)
		var ce *connection.Error
		if errors.As(err, &ce) && ce.Kind == connection.KindProbe {
			fmt.Println("    Is the backend running? GET /status did not answer.")
		}
		return false
	}
	conn.Close()
	fmt.Printf("    %-12s OK in %s\n", "Handshake:", time.Since(start).Round(time.Millisecond))

	fmt.Println()
	fmt.Println("Doctor check complete.")
	return true
}

func checkSetting(label string, on bool) {
	status := "off"
	if on {
		status = "on"
	}
	fmt.Printf("    %-12s %s\n", label, status)
}
