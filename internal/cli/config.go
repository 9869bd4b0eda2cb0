package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage run configuration files.

Examples:
  barsim config init -o spy.yaml
  barsim config validate -f spy.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nPoint levels[0].files at your bar data and run with:")
			fmt.Fprintf(out, "  barsim run -f %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "barsim.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Account:     %s %s\n", cfg.Account.InitialCash.StringFixed(2), cfg.Account.Currency)
			fmt.Fprintf(out, "  Instruments: %d\n", len(cfg.Instruments))
			for i, lv := range cfg.Levels {
				name := lv.Strategy.Name
				if name == "" {
					name = "(none)"
				}
				fmt.Fprintf(out, "  Level %d:     %s, %d file(s), strategy %s\n", i, lv.Name, len(lv.Files), name)
			}
			fmt.Fprintf(out, "  Digest:      %s\n", cfg.Digest())
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
