package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/plans"
)

func newAgreementsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agreements",
		Aliases: []string{"agr"},
		Short:   "Manage customer plan agreements",
		Long: `Drive agreements through their lifecycle: create a plan snapshot for
a customer, submit it to billing, record approval and activate it.
Activating cancels the customer's previously active agreement.`,
	}

	cmd.AddCommand(newAgreementsCreateCommand())
	cmd.AddCommand(newAgreementsApplyDefaultCommand())
	cmd.AddCommand(newAgreementsListCommand())
	cmd.AddCommand(newAgreementStepCommand("submit", "Push the agreement to the billing vendor",
		func(ctx context.Context, app *app, id string) (*plans.Agreement, error) {
			return app.plans.Submit(ctx, id)
		}))
	cmd.AddCommand(newAgreementStepCommand("approve", "Record the customer's approval",
		func(ctx context.Context, app *app, id string) (*plans.Agreement, error) {
			return app.plans.Approve(ctx, id)
		}))
	cmd.AddCommand(newAgreementStepCommand("activate", "Make the agreement the customer's live one",
		func(ctx context.Context, app *app, id string) (*plans.Agreement, error) {
			return app.plans.Activate(ctx, id)
		}))
	cmd.AddCommand(newAgreementStepCommand("cancel", "Cancel the agreement",
		func(ctx context.Context, app *app, id string) (*plans.Agreement, error) {
			return app.plans.Cancel(ctx, id)
		}))

	return cmd
}

func newAgreementsCreateCommand() *cobra.Command {
	var (
		customer string
		planID   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agreement for a customer",
		Example: `  # Subscribe a customer to the default plan
  mast agreements create --customer acme

  # Subscribe to a specific plan
  mast agreements create --customer acme --plan 7f3a...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if planID == "" {
				plan, err := app.plans.DefaultPlan(ctx)
				if err != nil {
					return err
				}
				if plan == nil {
					return fmt.Errorf("no default plan in the catalog, pass --plan")
				}
				planID = plan.ID
			}

			a, err := app.plans.CreateAgreement(ctx, customer, planID)
			if err != nil {
				return err
			}
			app.audit(ctx, "agreement.created", a.ID)
			return printAgreement(a)
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "customer identifier (required)")
	cmd.Flags().StringVar(&planID, "plan", "", "plan ID (default plan when empty)")
	cmd.MarkFlagRequired("customer")

	return cmd
}

func newAgreementsApplyDefaultCommand() *cobra.Command {
	var customer string

	cmd := &cobra.Command{
		Use:   "apply-default",
		Short: "Subscribe a customer to the default plan, fully activated",
		Long: `Create an agreement on the catalog's default plan and drive it through
submit, approve and activate in one step. The customer ends up with an
active agreement and the plan's quotas applied.`,
		Example: `  # Onboard a new customer
  mast agreements apply-default --customer acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			a, err := app.plans.ApplyDefault(ctx, customer)
			if err != nil {
				return err
			}
			app.audit(ctx, "agreement.apply-default", a.ID)
			return printAgreement(a)
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "customer identifier (required)")
	cmd.MarkFlagRequired("customer")

	return cmd
}

func newAgreementsListCommand() *cobra.Command {
	var customer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a customer's agreements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			agreements, err := app.store.ListAgreements(ctx, customer)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(agreements)
			}

			fmt.Printf("%-36s  %-14s  %-20s  %10s  %s\n", "ID", "CUSTOMER", "PLAN", "PRICE", "STATE")
			for i := range agreements {
				a := &agreements[i]
				fmt.Printf("%-36s  %-14s  %-20s  %10.2f  %s\n",
					a.ID, a.Customer, a.PlanName, a.PlanPrice, a.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "filter by customer")

	return cmd
}

// newAgreementStepCommand builds one lifecycle step command.
func newAgreementStepCommand(use, short string, step func(context.Context, *app, string) (*plans.Agreement, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <agreement-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			app.audit(ctx, "agreement."+use, args[0])
			a, err := step(ctx, app, args[0])
			if err != nil {
				return err
			}
			return printAgreement(a)
		},
	}
}

func printAgreement(a *plans.Agreement) error {
	if jsonOutput {
		return printJSON(a)
	}
	fmt.Printf("Agreement:  %s\n", a.ID)
	fmt.Printf("Customer:   %s\n", a.Customer)
	fmt.Printf("Plan:       %s (%.2f/month)\n", a.PlanName, a.PlanPrice)
	fmt.Printf("State:      %s\n", a.State)
	if a.ApprovalURL != "" {
		fmt.Printf("Approve at: %s\n", a.ApprovalURL)
	}
	if a.ErrorMessage != "" {
		fmt.Printf("Error:      %s\n", a.ErrorMessage)
	}
	return nil
}
