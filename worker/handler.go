package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/domain/event"
	"github.com/lloydmeta/reqindex/internal/domain/searchindex"
	"github.com/lloydmeta/reqindex/internal/domain/stream"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/domain/tracing"
	"github.com/lloydmeta/reqindex/worker/config"
)

// Disposition is what became of a Message once handled. Every Disposition results in the
// Message being committed.
type Disposition uint

const (
	PROCESSED Disposition = iota
	// The Message could never be handled, e.g. it could not be decoded
	DISCARDED
	// Handling kept failing until we ran out of attempts
	ABANDONED
)

var dispositionsToString = map[Disposition]string{
	PROCESSED: "processed",
	DISCARDED: "discarded",
	ABANDONED: "abandoned",
}

func (d Disposition) String() string {
	return dispositionsToString[d]
}

// A Handler takes a raw Message and does whatever needs to be done with it. It must not
// return until it is fine for the Message to be committed.
type Handler interface {
	Handle(ctx context.Context, msg stream.Message) Disposition
}

// Synchronizer is what decoded notifications get handed to
type Synchronizer interface {
	OnNotification(ctx context.Context, notification *event.Notification) (searchindex.Report, error)
}

// SyncHandler decodes item notifications and synchronises them through the Synchronizer of
// the tenant they belong to, retrying the whole notification with exponential backoff.
type SyncHandler struct {
	synchronizers  *tenant.Registry[Synchronizer]
	tracer         tracing.Tracer
	stats          *searchindex.Stats
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewSyncHandler(conf config.Worker, synchronizers *tenant.Registry[Synchronizer], tracer tracing.Tracer, stats *searchindex.Stats) *SyncHandler {
	if stats == nil {
		stats = &searchindex.Stats{}
	}
	maxAttempts := conf.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &SyncHandler{
		synchronizers:  synchronizers,
		tracer:         tracer,
		stats:          stats,
		maxAttempts:    maxAttempts,
		initialBackoff: conf.InitialBackoff,
		maxBackoff:     conf.MaxBackoff,
	}
}

func (h *SyncHandler) Handle(ctx context.Context, msg stream.Message) Disposition {
	notification, err := event.Decode(msg.Value, msg.Headers)
	if err != nil {
		log.Warn().
			Err(err).
			Str("topic", msg.Topic).
			Int("partition", int(msg.Partition)).
			Int64("offset", int64(msg.Offset)).
			Msg("Discarding undecodable message")
		h.stats.RecordDiscarded()
		return DISCARDED
	}

	// the subscription is per tenant topic, so a tenant header naming another tenant is suspect
	if topicTenant, ok := event.TenantFromTopic(msg.Topic); ok && topicTenant != notification.Tenant {
		log.Warn().
			Str("tenant", string(notification.Tenant)).
			Str("topic_tenant", string(topicTenant)).
			Str("topic", msg.Topic).
			Int64("offset", int64(msg.Offset)).
			Msg("Discarding message whose tenant does not match its topic")
		h.stats.RecordDiscarded()
		return DISCARDED
	}

	synchronizer, err := h.synchronizers.Get(notification.Tenant)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenant", string(notification.Tenant)).
			Str("topic", msg.Topic).
			Int64("offset", int64(msg.Offset)).
			Msg("Discarding message for tenant we do not serve")
		h.stats.RecordDiscarded()
		return DISCARDED
	}
	h.stats.RecordNotification()

	tx := h.tracer.BackgroundTx(ctx, "item-updated")
	defer tx.End()
	tx.SetLabel("tenant", string(notification.Tenant))
	tx.SetLabel("item_id", string(notification.ItemId()))

	var report searchindex.Report
	var attempt uint
	sync := func() error {
		attempt++
		r, err := synchronizer.OnNotification(tx.Context(), notification)
		report = r
		return err
	}
	notify := func(err error, wait time.Duration) {
		logEvent := log.Warn()
		var failures searchindex.WriteFailures
		if errors.As(err, &failures) {
			logEvent = log.Error()
		}
		logEvent.
			Err(err).
			Str("tenant", string(notification.Tenant)).
			Str("item_id", string(notification.ItemId())).
			Uint("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Failed to synchronise, will retry")
	}

	if err := backoff.RetryNotify(sync, h.newBackOff(tx.Context()), notify); err != nil {
		log.Error().
			Err(err).
			Str("tenant", string(notification.Tenant)).
			Str("item_id", string(notification.ItemId())).
			Str("position", msg.Position()).
			Uint("attempts", attempt).
			Msg("Giving up on notification")
		tx.CaptureError(err)
		tx.SetResult(ABANDONED.String())
		h.stats.RecordAbandoned()
		return ABANDONED
	}

	tx.SetResult(report.Outcome.String())
	log.Debug().
		Str("tenant", string(notification.Tenant)).
		Str("item_id", string(report.ItemId)).
		Str("outcome", report.Outcome.String()).
		Int("written", report.Count(searchindex.WRITTEN)).
		Int("unchanged", report.Count(searchindex.UNCHANGED)).
		Int("skipped", report.Count(searchindex.SKIPPED)).
		Msg("Handled notification")
	return PROCESSED
}

func (h *SyncHandler) newBackOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = h.initialBackoff
	exponential.MaxInterval = h.maxBackoff
	// bounded by attempts instead
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(h.maxAttempts-1)), ctx)
}
