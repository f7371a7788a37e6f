package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Parse and validate the CUE configuration without touching any
provider or the state store. Reports services, plans and every
validation error with its source location.`,
		Example: `  # Validate the config in the current directory
  mast validate

  # Validate a specific config file
  mast validate -c ./deploy/prod.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parser := config.NewCUEParser()
			sources := []string{configPath}
			if configPath == "" {
				sources = []string{"."}
			}
			cfg, err := parser.Load(ctx, sources)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cfg)
			}

			for _, ve := range cfg.Errors {
				log.Error().
					Str("file", ve.File).
					Int("line", ve.Line).
					Str("path", ve.Path).
					Msg(ve.Message)
			}

			fmt.Printf("Services: %d\n", len(cfg.Services))
			for i := range cfg.Services {
				svc := &cfg.Services[i]
				fmt.Printf("  %-20s %s\n", svc.Name, svc.Provider)
			}
			fmt.Printf("Plans: %d\n", len(cfg.Plans))
			for _, plan := range cfg.Plans {
				fmt.Printf("  %-20s %.2f/month\n", plan.Name, plan.MonthlyPrice)
			}

			if len(cfg.Errors) > 0 {
				return fmt.Errorf("config has %d validation error(s)", len(cfg.Errors))
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	}

	return cmd
}
