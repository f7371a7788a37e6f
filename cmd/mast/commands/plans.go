package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/config"
)

func newPlansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage the billing plan catalog",
	}

	cmd.AddCommand(newPlansListCommand())
	cmd.AddCommand(newPlansSyncCommand())
	cmd.AddCommand(newPlansPriceCommand())

	return cmd
}

func newPlansListCommand() *cobra.Command {
	var includeArchived bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			catalog, err := app.store.ListPlans(ctx, includeArchived)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(catalog)
			}

			fmt.Printf("%-36s  %-20s  %10s  %s\n", "ID", "NAME", "PRICE", "FLAGS")
			for i := range catalog {
				p := &catalog[i]
				flags := ""
				if p.IsDefault {
					flags = "default"
				}
				fmt.Printf("%-36s  %-20s  %10.2f  %s\n", p.ID, p.Name, p.MonthlyPrice, flags)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeArchived, "archived", false, "include archived plans")

	return cmd
}

func newPlansSyncCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load the configured plan catalog into the store",
		Long: `Write every plan from the CUE configuration into the state store.
Plans with a pricing script have their monthly price evaluated first.
With --catalog the plans come from a standalone YAML file instead of
the CUE config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if catalogPath != "" {
				loaded, err := config.LoadPlanCatalogYAML(catalogPath)
				if err != nil {
					return err
				}
				app.cfg.Plans = loaded
			}

			// Evaluate pricing scripts before the config is flattened.
			for i := range app.cfg.Plans {
				entry := &app.cfg.Plans[i]
				if entry.PricingScript == "" {
					continue
				}
				price, err := app.parser.PlanPrice(ctx, *entry)
				if err != nil {
					return fmt.Errorf("pricing script for plan %q failed: %w", entry.Name, err)
				}
				entry.MonthlyPrice = price
			}

			for _, plan := range app.cfg.ToPlans() {
				p := plan
				if err := app.store.SavePlan(ctx, &p); err != nil {
					return err
				}
				log.Info().Str("plan", p.Name).Float64("price", p.MonthlyPrice).Msg("Plan saved")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML plan catalog to load instead of the CUE config")

	return cmd
}

func newPlansPriceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price <plan-name>",
		Short: "Preview a plan's effective monthly price",
		Long: `Evaluate the plan's pricing script against its base price and quotas
without writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			for i := range app.cfg.Plans {
				entry := &app.cfg.Plans[i]
				if entry.Name != name {
					continue
				}
				price := entry.MonthlyPrice
				if entry.PricingScript != "" {
					price, err = app.parser.PlanPrice(ctx, *entry)
					if err != nil {
						return err
					}
				}
				fmt.Printf("%s: %.2f/month (base %.2f)\n", entry.Name, price, entry.MonthlyPrice)
				return nil
			}
			return fmt.Errorf("plan %q is not configured", name)
		},
	}

	return cmd
}
