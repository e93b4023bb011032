// ABOUTME: Shared application wiring for every command
// ABOUTME: Opens the database, rule store, event queue and scoring pipeline from the loaded config
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/config"
	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/linker"
	"github.com/harperreed/tradedesk/metrics"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
	"github.com/harperreed/tradedesk/sources"
)

// App is the set of components a command works with. Feeds are built only by
// commands that poll, so the rest never touch credentials.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *sql.DB
	Rules    *rules.Store
	Queue    *scoring.EventQueue
	Registry *prometheus.Registry
	Metrics  *metrics.IngestMetrics
	Recorder *scoring.Recorder
	Pipeline *intake.Pipeline
}

// OpenApp opens the database and rule book named by cfg.
func OpenApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	store, err := rules.NewStore(cfg.RulesPath, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIngestMetrics(reg)

	queue := scoring.NewEventQueue(cfg.Ingest.QueueCapacity, logger)
	queue.OnDrop(m.ObserveEventDropped)
	recorder := scoring.NewRecorder(database, store, queue, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       database,
		Rules:    store,
		Queue:    queue,
		Registry: reg,
		Metrics:  m,
		Recorder: recorder,
		Pipeline: intake.NewPipeline(recorder, linker.NewResolver(logger), logger),
	}, nil
}

// Ingestor builds the configured feeds and an ingestor over them.
func (a *App) Ingestor(ctx context.Context) (*intake.Ingestor, error) {
	feeds, err := sources.BuildAll(ctx, a.Config.Sources, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("building sources: %w", err)
	}
	return intake.NewIngestor(a.DB, a.Pipeline, feeds, a.Config.IngestOptions(), a.Metrics, a.Logger), nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
