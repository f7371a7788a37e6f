package commands

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudmast/cloudmast/pkg/config"
	"github.com/cloudmast/cloudmast/pkg/provision"
	"github.com/cloudmast/cloudmast/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator daemon",
		Long: `Run continuous reconciliation: sync every service on an interval,
serve prometheus metrics when a metrics address is configured and
reload the configuration when its files change. Runs until
interrupted.`,
		Example: `  # Reconcile every five minutes
  mast serve --interval 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if app.cfg.Settings.MetricsAddress != "" {
				if err := app.metrics.StartMetricsServer(); err != nil {
					return err
				}
				log.Info().Str("address", app.cfg.Settings.MetricsAddress).Msg("Metrics server started")
			}

			sources := app.cfg.SourceFiles
			if len(sources) > 0 {
				watcher := config.NewWatcher(app.parser, sources, log.Logger)
				go func() {
					err := watcher.Watch(ctx, func(cfg *config.ParsedConfig) error {
						return app.reload(ctx, cfg)
					})
					if err != nil {
						log.Warn().Err(err).Msg("Config watcher stopped")
					}
				}()
				defer watcher.Stop()
			}

			log.Info().Dur("interval", interval).Msg("Reconciliation loop started")
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			syncAll(ctx, app)
			for {
				select {
				case <-ctx.Done():
					log.Info().Msg("Shutting down")
					return nil
				case <-ticker.C:
					syncAll(ctx, app)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 10*time.Minute, "time between reconciliation passes")

	return cmd
}

// syncAll runs one reconciliation pass over every configured service,
// with concurrency bounded by the configured parallelism.
func syncAll(ctx context.Context, app *app) {
	parallelism := app.cfg.Settings.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for _, name := range app.services("") {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			spanCtx, span := app.tracer.StartSyncSpan(ctx, name)
			defer span.End()

			result, err := app.syncer.Sync(spanCtx, name)
			if err != nil {
				telemetry.RecordError(span, err)
				app.metrics.RecordSync(name, "failure", 0)
				log.Error().Err(err).Str("service", name).Msg("Sync failed")
				return
			}
			telemetry.RecordSuccess(span)
			app.metrics.RecordSync(name, "success", result.Duration)
			app.metrics.RecordStaleResources(name, result.Stale)
			log.Info().
				Str("service", name).
				Int("refreshed", result.Refreshed).
				Int("stale", result.Stale).
				Dur("duration", result.Duration).
				Msg("Sync completed")
		}(name)
	}
	wg.Wait()

	updateGauges(ctx, app.store, app.metrics)
}

// gaugeSource is the store view the gauge refresh reads.
type gaugeSource interface {
	ListResources(ctx context.Context, service string) ([]provision.Resource, error)
	OpenAlerts(ctx context.Context, service string) ([]provision.Alert, error)
}

// gaugeSink receives the refreshed gauge values.
type gaugeSink interface {
	SetResourceCount(provider string, state provision.State, count float64)
	SetOpenAlerts(kind provision.AlertKind, service string, count float64)
}

// updateGauges refreshes the resource and open-alert gauges from the
// store after a reconciliation pass.
func updateGauges(ctx context.Context, store gaugeSource, metrics gaugeSink) {
	resources, err := store.ListResources(ctx, "")
	if err != nil {
		log.Warn().Err(err).Msg("Resource gauge refresh failed")
	} else {
		type key struct {
			provider string
			state    provision.State
		}
		counts := make(map[key]float64)
		for i := range resources {
			counts[key{resources[i].Provider, resources[i].State}]++
		}
		for k, n := range counts {
			metrics.SetResourceCount(k.provider, k.state, n)
		}
	}

	alerts, err := store.OpenAlerts(ctx, "")
	if err != nil {
		log.Warn().Err(err).Msg("Alert gauge refresh failed")
		return
	}
	type key struct {
		kind    provision.AlertKind
		service string
	}
	counts := make(map[key]float64)
	for i := range alerts {
		counts[key{alerts[i].Kind, alerts[i].Service}]++
	}
	for k, n := range counts {
		metrics.SetOpenAlerts(k.kind, k.service, n)
	}
}
