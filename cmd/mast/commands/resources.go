package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"res"},
		Short:   "Inspect and import resources",
	}

	cmd.AddCommand(newResourcesListCommand())
	cmd.AddCommand(newResourcesImportCommand())
	cmd.AddCommand(newResourcesShowCommand())

	return cmd
}

func newResourcesListCommand() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			resources, err := app.store.ListResources(ctx, service)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(resources)
			}

			fmt.Printf("%-36s  %-8s  %-20s  %-14s  %-12s  %s\n",
				"ID", "KIND", "NAME", "SERVICE", "STATE", "BACKEND ID")
			for i := range resources {
				r := &resources[i]
				fmt.Printf("%-36s  %-8s  %-20s  %-14s  %-12s  %s\n",
					r.ID, r.Kind, r.Name, r.Service, r.State, r.BackendID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "filter by service")

	return cmd
}

func newResourcesShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <resource-id>",
		Short: "Show one resource in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := app.store.GetResource(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}

			fmt.Printf("ID:           %s\n", res.ID)
			fmt.Printf("Kind:         %s\n", res.Kind)
			fmt.Printf("Name:         %s\n", res.Name)
			fmt.Printf("Service:      %s (%s)\n", res.Service, res.Provider)
			fmt.Printf("State:        %s (%s)\n", res.State, res.RuntimeState)
			fmt.Printf("Backend ID:   %s\n", res.BackendID)
			if res.Region != "" {
				fmt.Printf("Region:       %s\n", res.Region)
			}
			if res.Cores > 0 {
				fmt.Printf("Size:         %d cores, %d MiB RAM, %d MiB disk\n", res.Cores, res.RAM, res.Disk)
			}
			if res.ExternalIP != "" {
				fmt.Printf("External IP:  %s\n", res.ExternalIP)
			}
			if res.InternalIP != "" {
				fmt.Printf("Internal IP:  %s\n", res.InternalIP)
			}
			if res.URL != "" {
				fmt.Printf("URL:          %s\n", res.URL)
			}
			if res.ErrorMessage != "" {
				fmt.Printf("Error:        %s\n", res.ErrorMessage)
			}

			ops, err := app.store.ListOperations(ctx, res.ID, 5, 0)
			if err != nil {
				return err
			}
			if len(ops) > 0 {
				fmt.Println("Recent operations:")
				for _, op := range ops {
					fmt.Printf("  %-10s %-10s attempts=%d %s\n",
						op.Kind, op.Status, op.Attempts, op.StartedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	return cmd
}

func newResourcesImportCommand() *cobra.Command {
	var (
		service   string
		backendID string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import vendor-side objects not yet tracked",
		Long: `List the objects the vendor knows but the local store does not, and
adopt them as tracked resources.`,
		Example: `  # See what could be imported
  mast resources import --service do-prod

  # Adopt one object by its vendor ID
  mast resources import --service do-prod --id 4412986`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			candidates, err := app.syncer.ImportCandidates(ctx, service)
			if err != nil {
				return err
			}

			if backendID == "" {
				if jsonOutput {
					return printJSON(candidates)
				}
				fmt.Printf("%-20s  %-8s  %-20s  %-12s  %s\n",
					"BACKEND ID", "KIND", "NAME", "STATE", "REGION")
				for i := range candidates {
					c := &candidates[i]
					fmt.Printf("%-20s  %-8s  %-20s  %-12s  %s\n",
						c.BackendID, c.Kind, c.Name, c.State, c.Region)
				}
				return nil
			}

			for i := range candidates {
				if candidates[i].BackendID == backendID {
					res := adoptRemote(service, app.cfg.Service(service).Provider, &candidates[i])
					if err := app.store.SaveResource(ctx, res); err != nil {
						return err
					}
					app.audit(ctx, "resource.imported", res.ID)
					log.Info().Str("resource", res.ID).Str("backend_id", backendID).Msg("Resource imported")
					if jsonOutput {
						return printJSON(res)
					}
					return nil
				}
			}
			return fmt.Errorf("object %q is not an import candidate for %s", backendID, service)
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "service to import from (required)")
	cmd.Flags().StringVar(&backendID, "id", "", "vendor ID of the object to adopt")
	cmd.MarkFlagRequired("service")

	return cmd
}

// adoptRemote turns an import candidate into a tracked resource record.
func adoptRemote(service, provider string, remote *provision.RemoteResource) *provision.Resource {
	now := time.Now()
	return &provision.Resource{
		ID:           uuid.New().String(),
		Kind:         remote.Kind,
		Name:         remote.Name,
		Provider:     provider,
		Service:      service,
		BackendID:    remote.BackendID,
		State:        remote.State,
		RuntimeState: remote.RuntimeState,
		Region:       remote.Region,
		Cores:        remote.Cores,
		RAM:          remote.RAM,
		Disk:         remote.Disk,
		ExternalIP:   remote.ExternalIP,
		InternalIP:   remote.InternalIP,
		URL:          remote.URL,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}
