package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAlertsCommand() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List open alerts",
		Long: `Show the alerts the engine has opened and not yet closed, such as a
service whose token lacks the scopes its operations need.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			alerts, err := app.store.OpenAlerts(ctx, service)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(alerts)
			}

			if len(alerts) == 0 {
				fmt.Println("No open alerts")
				return nil
			}
			fmt.Printf("%-20s  %-14s  %-25s  %s\n", "KIND", "SERVICE", "OPENED", "MESSAGE")
			for i := range alerts {
				a := &alerts[i]
				fmt.Printf("%-20s  %-14s  %-25s  %s\n",
					a.Kind, a.Service, a.OpenedAt.Format(time.RFC3339), a.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "filter by service")

	return cmd
}
