package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

func newSyncCommand() *cobra.Command {
	var (
		service  string
		pushKeys bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync vendor catalogs and resource state",
		Long: `Pull the vendor catalog (regions, images, sizes) for each service,
refresh the state of tracked resources from the vendor and mark
records erred when their vendor object disappeared.

With --push-keys the SSH public keys configured for each service are
uploaded to providers that manage keys.`,
		Example: `  # Sync every configured service
  mast sync

  # Sync one service and push its SSH keys
  mast sync --service do-prod --push-keys`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			var results []provision.SyncResult
			var failed int
			for _, name := range app.services(service) {
				if pushKeys {
					if err := pushServiceKeys(cmd, app, name); err != nil {
						log.Error().Err(err).Str("service", name).Msg("Key push failed")
						failed++
						continue
					}
				}

				result, err := app.syncer.Sync(ctx, name)
				if err != nil {
					log.Error().Err(err).Str("service", name).Msg("Sync failed")
					failed++
					continue
				}
				results = append(results, *result)

				log.Info().
					Str("service", name).
					Int("regions", result.Regions).
					Int("images", result.Images).
					Int("sizes", result.Sizes).
					Int("refreshed", result.Refreshed).
					Int("stale", result.Stale).
					Dur("duration", result.Duration).
					Msg("Sync completed")
			}

			if jsonOutput {
				if err := printJSON(results); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d service(s) failed to sync", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "sync a single service")
	cmd.Flags().BoolVar(&pushKeys, "push-keys", false, "upload configured SSH keys")

	return cmd
}

// pushServiceKeys uploads the configured SSH keys to the service's
// provider. Providers without key management are skipped.
func pushServiceKeys(cmd *cobra.Command, app *app, service string) error {
	svc := app.cfg.Service(service)
	if svc == nil || len(svc.SSHKeys) == 0 {
		return nil
	}
	backend, err := app.registry.Get(service)
	if err != nil {
		return err
	}
	keys, ok := backend.(provision.KeyBackend)
	if !ok {
		log.Debug().Str("service", service).Msg("Provider does not manage SSH keys, skipping")
		return nil
	}
	for i, material := range svc.SSHKeys {
		key, err := provision.NewSSHKey(fmt.Sprintf("%s-key-%d", service, i+1), material)
		if err != nil {
			return err
		}
		if _, err := keys.EnsureKey(cmd.Context(), *key); err != nil {
			return err
		}
		log.Info().Str("service", service).Str("fingerprint", key.Fingerprint).Msg("SSH key pushed")
	}
	return nil
}
