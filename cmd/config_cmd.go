package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			masked := cfg.MaskedCopy()

			var data []byte
			switch format {
			case "yaml":
				data, err = yaml.Marshal(masked)
			case "json", "":
				data, err = json.MarshalIndent(masked, "", "  ")
				data = append(data, '\n')
			default:
				return fmt.Errorf("unknown format %q (json|yaml)", format)
			}
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			fmt.Fprintf(os.Stderr, "# hash %s\n", cfg.Hash())
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format (json|yaml)")
	return cmd
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := loadConfig(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
			return nil
		},
	}
}
