package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func newVolumesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "Manage block storage attachments",
	}

	cmd.AddCommand(newVolumesAttachCommand())
	cmd.AddCommand(newVolumesDetachCommand())

	return cmd
}

func newVolumesAttachCommand() *cobra.Command {
	var (
		machineID string
		device    string
	)

	cmd := &cobra.Command{
		Use:   "attach <volume-id>",
		Short: "Attach a volume to a machine",
		Example: `  # Attach a volume under /dev/sdf
  mast volumes attach 9f1c... --machine 4a7e... --device /dev/sdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			volume, backend, err := volumeFor(cmd, app, args[0])
			if err != nil {
				return err
			}
			machine, err := app.store.GetResource(ctx, machineID)
			if err != nil {
				return err
			}
			if machine.Kind != provision.KindMachine {
				return fmt.Errorf("resource %s is a %s, not a machine", machine.ID, machine.Kind)
			}

			if err := backend.AttachVolume(ctx, machine.BackendID, volume.BackendID, device); err != nil {
				return err
			}
			app.audit(ctx, "volume.attached", volume.ID)
			log.Info().
				Str("volume", volume.ID).
				Str("machine", machine.ID).
				Str("device", device).
				Msg("Volume attached")
			return nil
		},
	}

	cmd.Flags().StringVar(&machineID, "machine", "", "machine resource ID to attach to (required)")
	cmd.Flags().StringVar(&device, "device", "", "device name (required)")
	cmd.MarkFlagRequired("machine")
	cmd.MarkFlagRequired("device")

	return cmd
}

func newVolumesDetachCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detach <volume-id>",
		Short: "Detach a volume from its machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			volume, backend, err := volumeFor(cmd, app, args[0])
			if err != nil {
				return err
			}

			if err := backend.DetachVolume(ctx, volume.BackendID); err != nil {
				return err
			}
			app.audit(ctx, "volume.detached", volume.ID)
			log.Info().Str("volume", volume.ID).Msg("Volume detached")
			return nil
		},
	}

	return cmd
}

// volumeFor loads a volume record and the storage-capable backend of
// its service.
func volumeFor(cmd *cobra.Command, app *app, resourceID string) (*provision.Resource, provision.VolumeBackend, error) {
	res, err := app.store.GetResource(cmd.Context(), resourceID)
	if err != nil {
		return nil, nil, err
	}
	if res.Kind != provision.KindVolume {
		return nil, nil, fmt.Errorf("resource %s is a %s, not a volume", res.ID, res.Kind)
	}
	backend, err := app.registry.Get(res.Service)
	if err != nil {
		return nil, nil, err
	}
	vb, ok := backend.(provision.VolumeBackend)
	if !ok {
		return nil, nil, fmt.Errorf("service %q does not manage volumes", res.Service)
	}
	return res, vb, nil
}
