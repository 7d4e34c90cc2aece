package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/secretguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect secretguard configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		errs := config.Validate(appConfig)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Marshal(appConfig)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if appConfigPath == "" {
			fmt.Fprintln(out, "# built-in defaults (no config file found)")
		} else {
			fmt.Fprintf(out, "# %s\n", appConfigPath)
		}
		fmt.Fprint(out, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
