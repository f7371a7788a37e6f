package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudmast/cloudmast/pkg/backends/aws"
	"github.com/cloudmast/cloudmast/pkg/backends/azure"
	"github.com/cloudmast/cloudmast/pkg/backends/digitalocean"
	"github.com/cloudmast/cloudmast/pkg/backends/gitlab"
	"github.com/cloudmast/cloudmast/pkg/config"
	"github.com/cloudmast/cloudmast/pkg/plans"
	"github.com/cloudmast/cloudmast/pkg/policy"
	"github.com/cloudmast/cloudmast/pkg/provision"
	"github.com/cloudmast/cloudmast/pkg/stores"
	"github.com/cloudmast/cloudmast/pkg/telemetry"
)

const defaultDatabasePath = "cloudmast.db"

// app bundles the wired engine for one command invocation: parsed
// config, state store, bound backends and the chain runner on top.
type app struct {
	cfg      *config.ParsedConfig
	parser   *config.CUEParser
	store    *stores.SQLiteStore
	registry *provision.Registry
	runner   *provision.Runner
	syncer   *provision.Syncer
	plans    *plans.Manager
	events   *telemetry.EventPublisher
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// newApp loads the configuration and wires the full engine. Every
// configured service is bound, so credential mistakes surface here and
// not halfway through a chain.
func newApp(ctx context.Context) (*app, error) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	parser := config.NewCUEParser()
	sources := []string{configPath}
	if configPath == "" {
		sources = []string{"."}
	}
	cfg, err := parser.Load(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Errors) > 0 {
		for _, ve := range cfg.Errors {
			log.Error().Str("path", ve.Path).Str("file", ve.File).Msg(ve.Message)
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(cfg.Errors))
	}

	dbPath := cfg.Settings.DatabasePath
	if dbPath == "" {
		dbPath = defaultDatabasePath
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	registry := provision.NewRegistry()
	factories := map[string]provision.BackendFactory{
		digitalocean.Kind: digitalocean.Factory,
		aws.Kind:          aws.Factory,
		azure.Kind:        azure.Factory,
		gitlab.Kind:       gitlab.Factory,
	}
	for kind, factory := range factories {
		if err := registry.RegisterFactory(kind, factory); err != nil {
			store.Close()
			return nil, err
		}
	}
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if _, err := registry.Bind(ctx, svc.ToSettings()); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to bind service %s: %w", svc.Name, err)
		}
	}

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{
		Enabled:       true,
		BufferSize:    256,
		FlushInterval: time.Second,
		MaxBatchSize:  64,
		EnableAsync:   true,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	events.Subscribe(logEvent, nil)
	events.Subscribe(func(event telemetry.Event) { persistEvent(store, event) }, nil)

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:       cfg.Settings.MetricsAddress != "",
		ListenAddress: cfg.Settings.MetricsAddress,
		Path:          "/metrics",
		Namespace:     "cloudmast",
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:            cfg.Settings.TracingExporter != "",
		Exporter:           cfg.Settings.TracingExporter,
		Endpoint:           cfg.Settings.TracingEndpoint,
		SamplingRate:       1.0,
		MaxExportBatchSize: 512,
		ExportTimeout:      30 * time.Second,
		Insecure:           true,
	}, "cloudmast", appVersion, "production")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build tracer: %w", err)
	}

	var gate provision.Gate
	if cfg.Policy.Enabled {
		engine, err := policy.NewEngine(log.Logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to build policy engine: %w", err)
		}
		if len(cfg.Policy.Paths) > 0 {
			if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				store.Close()
				return nil, fmt.Errorf("failed to load policies: %w", err)
			}
		}
		mode := policy.ModeEnforcing
		if cfg.Policy.Mode == string(policy.ModeAdvisory) {
			mode = policy.ModeAdvisory
		}
		gate = policy.NewGate(engine, log.Logger, policy.WithMode(mode))
	}

	logger := chainLogger{log.Logger}
	alerter := provision.NewAlerter(store, events)
	runnerOpts := []provision.RunnerOption{
		provision.WithPoller(provision.NewPoller(cfg.Settings.PollAttempts, cfg.Settings.PollDelay())),
		provision.WithAlerter(alerter),
		provision.WithEvents(events),
		provision.WithMetrics(metrics),
		provision.WithLogger(logger),
	}
	if gate != nil {
		runnerOpts = append(runnerOpts, provision.WithGate(gate))
	}

	return &app{
		cfg:      cfg,
		parser:   parser,
		store:    store,
		registry: registry,
		runner:   provision.NewRunner(store, registry, runnerOpts...),
		syncer:   provision.NewSyncer(store, registry, events, logger),
		plans: plans.NewManager(store, plans.NewOfflineBilling(),
			plans.WithAlerter(alerter), plans.WithEvents(events), plans.WithLogger(logger)),
		events:  events,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// reload rebinds every service from a freshly parsed config. Bindings
// that fail keep their previous backend.
func (a *app) reload(ctx context.Context, cfg *config.ParsedConfig) error {
	if len(cfg.Errors) > 0 {
		return fmt.Errorf("reloaded config has %d validation error(s)", len(cfg.Errors))
	}
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if _, err := a.registry.Bind(ctx, svc.ToSettings()); err != nil {
			log.Error().Err(err).Str("service", svc.Name).Msg("Rebind failed, keeping previous backend")
		}
	}
	a.cfg = cfg
	log.Info().Int("services", len(cfg.Services)).Msg("Configuration reloaded")
	return nil
}

// close releases the store and flushes pending events.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.events.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Event publisher shutdown failed")
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Tracer shutdown failed")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("State store close failed")
	}
}

// services returns the requested service names: the argument when
// given, otherwise every configured service.
func (a *app) services(name string) []string {
	if name != "" {
		return []string{name}
	}
	names := make([]string, len(a.cfg.Services))
	for i := range a.cfg.Services {
		names[i] = a.cfg.Services[i].Name
	}
	return names
}

// chainLogger adapts zerolog to the engine's printf-style logger.
type chainLogger struct {
	l zerolog.Logger
}

func (c chainLogger) Debugf(format string, args ...interface{}) { c.l.Debug().Msgf(format, args...) }
func (c chainLogger) Infof(format string, args ...interface{})  { c.l.Info().Msgf(format, args...) }
func (c chainLogger) Warnf(format string, args ...interface{})  { c.l.Warn().Msgf(format, args...) }
func (c chainLogger) Errorf(format string, args ...interface{}) { c.l.Error().Msgf(format, args...) }

// persistEvent appends an engine event to the store's journal. Journal
// write failures are logged, never propagated: the journal is advisory.
func persistEvent(store *stores.SQLiteStore, event telemetry.Event) {
	record := &stores.Event{
		EventType: event.Type,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}
	if event.ResourceID != "" {
		record.ResourceID = &event.ResourceID
	}
	if len(event.Data) > 0 {
		if raw, err := json.Marshal(event.Data); err == nil {
			details := string(raw)
			record.Details = &details
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.AppendEvent(ctx, record); err != nil {
		log.Warn().Err(err).Str("event", event.Type).Msg("Event journal write failed")
	}
}

// audit records who ran which command against what.
func (a *app) audit(ctx context.Context, action, targetID string) {
	actor := os.Getenv("USER")
	if actor == "" {
		actor = "cli"
	}
	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now(),
	}
	if targetID != "" {
		entry.TargetID = &targetID
	}
	if err := a.store.CreateAuditEntry(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Audit write failed")
	}
}

// logEvent mirrors engine events onto the console log.
func logEvent(event telemetry.Event) {
	entry := log.Info()
	if event.Level == telemetry.EventLevelError {
		entry = log.Error()
	}
	entry.Str("event", event.Type).Str("resource", event.ResourceID).Msg(event.Message)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
