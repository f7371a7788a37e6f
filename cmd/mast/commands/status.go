package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check store and provider health",
		Long: `Ping every configured service with its credentials and verify the
state store answers. Exits non-zero when anything is unreachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			type check struct {
				Name   string `json:"name"`
				Status string `json:"status"`
				Error  string `json:"error,omitempty"`
			}
			var checks []check
			var failed int

			storeCheck := check{Name: "store", Status: "ok"}
			if err := app.store.HealthCheck(ctx); err != nil {
				storeCheck.Status = "failed"
				storeCheck.Error = err.Error()
				failed++
			}
			checks = append(checks, storeCheck)

			for _, name := range app.services("") {
				c := check{Name: name, Status: "ok"}
				backend, err := app.registry.Get(name)
				if err == nil {
					err = backend.Ping(ctx)
				}
				if err != nil {
					c.Status = "failed"
					c.Error = err.Error()
					failed++
				}
				checks = append(checks, c)
			}

			if jsonOutput {
				if err := printJSON(checks); err != nil {
					return err
				}
			} else {
				for _, c := range checks {
					if c.Error != "" {
						fmt.Printf("%-20s  %-8s  %s\n", c.Name, c.Status, c.Error)
					} else {
						fmt.Printf("%-20s  %s\n", c.Name, c.Status)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}

	return cmd
}
