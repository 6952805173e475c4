package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/domain/searchindex"
	"github.com/lloydmeta/reqindex/internal/domain/stream"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/domain/tracing"
	apmtracing "github.com/lloydmeta/reqindex/internal/infra/apm/tracing"
	"github.com/lloydmeta/reqindex/internal/infra/cron/stats"
	"github.com/lloydmeta/reqindex/internal/infra/kafka"
	"github.com/lloydmeta/reqindex/worker"
)

const setupTimeout = 30 * time.Second

// Components are the wired up pieces of a running synchronizer
type Components struct {
	storage  *Storage
	workLoop *worker.WorkLoop
	reporter *stats.Reporter
}

// NewComponents builds everything needed to synchronise the configured tenants, making sure
// storage is set up along the way
func NewComponents(conf *config.App) (*Components, error) {
	tenants, err := tenant.IdsFromStrings(conf.Tenants)
	if err != nil {
		return nil, err
	}
	storage, err := NewStorage(conf, tenants)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := storage.Setup.RunIfNeeded(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	subscriptions := kafka.NewSubscriptions(*conf, tenants)
	components, err := wire(conf, storage, subscriptions, apmtracing.NewTracer())
	if err != nil {
		for _, s := range subscriptions {
			_ = s.Close()
		}
		_ = storage.Close()
		return nil, err
	}
	return components, nil
}

func wire(conf *config.App, storage *Storage, subscriptions []stream.Subscription, tracer tracing.Tracer) (*Components, error) {
	statsCollector := &searchindex.Stats{}
	settings := searchindex.Settings{
		VersionConflictRetryTimes: conf.Synchronizer.VersionConflictRetryTimes,
		WriteConcurrency:          conf.Synchronizer.WriteConcurrency,
	}
	synchronizers, err := tenant.NewRegistry(storage.Requests.Tenants(), func(t tenant.Id) (worker.Synchronizer, error) {
		service, err := storage.Requests.Get(t)
		if err != nil {
			return nil, err
		}
		return searchindex.NewSynchronizer(service, settings, statsCollector), nil
	})
	if err != nil {
		return nil, err
	}

	reporter := stats.NewReporter(statsCollector)
	if len(conf.Stats.ReportSchedule) > 0 {
		if err := reporter.Schedule(conf.Stats.ReportSchedule); err != nil {
			return nil, err
		}
	}

	handler := worker.NewSyncHandler(conf.Worker, synchronizers, tracer, statsCollector)
	return &Components{
		storage:  storage,
		workLoop: worker.NewWorkLoop(conf.Worker, subscriptions, handler),
		reporter: reporter,
	}, nil
}

// Run blocks, synchronising until the process is told to stop
func (c *Components) Run() {
	c.reporter.Start()
	if err := c.workLoop.Run(); err != nil {
		log.Error().Err(err).Msg("Work loop failed")
	}
	c.reporter.Stop()
	if err := c.storage.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
	}
}
