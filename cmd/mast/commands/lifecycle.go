package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func newStartCommand() *cobra.Command {
	return newLifecycleCommand("start", "Start a stopped machine",
		func(ctx context.Context, app *app, resourceID string) error {
			return app.runner.Start(ctx, resourceID, reportCallbacks())
		})
}

func newStopCommand() *cobra.Command {
	return newLifecycleCommand("stop", "Stop a running machine",
		func(ctx context.Context, app *app, resourceID string) error {
			return app.runner.Stop(ctx, resourceID, reportCallbacks())
		})
}

func newRestartCommand() *cobra.Command {
	return newLifecycleCommand("restart", "Restart a running machine",
		func(ctx context.Context, app *app, resourceID string) error {
			return app.runner.Restart(ctx, resourceID, reportCallbacks())
		})
}

func newDestroyCommand() *cobra.Command {
	var force bool

	cmd := newLifecycleCommand("destroy", "Destroy a resource",
		func(ctx context.Context, app *app, resourceID string) error {
			if !force {
				res, err := app.store.GetResource(ctx, resourceID)
				if err != nil {
					return err
				}
				fmt.Printf("About to destroy %s %q (%s) on %s. Re-run with --force to confirm.\n",
					res.Kind, res.Name, res.ID, res.Service)
				return nil
			}
			return app.runner.Destroy(ctx, resourceID, reportCallbacks())
		})
	cmd.Long = `Tear down the vendor object and delete the local record. A vendor
object that is already gone counts as success.`
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation step")

	return cmd
}

func newResizeCommand() *cobra.Command {
	var sizeID string

	cmd := &cobra.Command{
		Use:   "resize <resource-id>",
		Short: "Resize a stopped machine",
		Long: `Change a machine's size. The machine must be offline; the new size's
dimensions are looked up in the synced vendor catalog.`,
		Example: `  mast resize 2f1c... --size s-2vcpu-4gb`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			resourceID := args[0]

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := app.store.GetResource(ctx, resourceID)
			if err != nil {
				return err
			}
			size, err := lookupSize(ctx, app, res.Service, sizeID)
			if err != nil {
				return err
			}

			log.Info().Str("resource", resourceID).Str("size", sizeID).Msg("Resizing machine")
			app.audit(ctx, "resource.resize", resourceID)
			return app.runner.Resize(ctx, resourceID, *size, reportCallbacks())
		},
	}

	cmd.Flags().StringVar(&sizeID, "size", "", "new size backend ID (required)")
	cmd.MarkFlagRequired("size")

	return cmd
}

// newLifecycleCommand builds a single-resource chain command.
func newLifecycleCommand(use, short string, run func(context.Context, *app, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <resource-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			app.audit(ctx, "resource."+use, args[0])
			return run(ctx, app, args[0])
		},
	}
}

// lookupSize resolves a size backend ID in the service's synced catalog.
func lookupSize(ctx context.Context, app *app, service, sizeID string) (*provision.Size, error) {
	props, err := app.store.Properties(ctx, service)
	if err != nil {
		return nil, err
	}
	for i := range props.Sizes {
		if props.Sizes[i].BackendID == sizeID {
			return &props.Sizes[i], nil
		}
	}
	return nil, fmt.Errorf("size %q not found in the %s catalog, run 'mast sync' first", sizeID, service)
}
