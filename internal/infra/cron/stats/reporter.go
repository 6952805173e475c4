package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/domain/searchindex"
)

// Reporter periodically logs synchronisation Stats: totals since startup, and what changed
// since the previous report.
type Reporter struct {
	cron  *cron.Cron
	stats *searchindex.Stats

	mu       sync.Mutex
	previous searchindex.StatsSnapshot
	entryId  *cron.EntryID
}

func NewReporter(stats *searchindex.Stats) *Reporter {
	return &Reporter{
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithLogger(zeroLogCronLogger{})),
		stats: stats,
	}
}

// Schedule (re)schedules reporting according to the given cron spec, e.g. "@every 1m"
func (r *Reporter) Schedule(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := cron.ParseStandard(spec); err != nil {
		return InvalidSchedule{Spec: spec, Underlying: err}
	}
	if r.entryId != nil {
		r.cron.Remove(*r.entryId)
		r.entryId = nil
	}
	job := cron.NewChain(
		cron.Recover(zeroLogCronLogger{}),
		cron.SkipIfStillRunning(zeroLogCronLogger{}),
	).Then(cron.FuncJob(func() {
		r.Report()
	}))
	entryId, err := r.cron.AddJob(spec, job)
	if err != nil {
		return InvalidSchedule{Spec: spec, Underlying: err}
	}
	r.entryId = &entryId
	return nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop stops scheduling reports, logs a final one and waits for any running report
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	r.Report()
}

// Report logs the current stats and returns how they changed since the last report
func (r *Reporter) Report() searchindex.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.stats.Snapshot()
	delta := current.Since(r.previous)
	r.previous = current

	log.Info().
		Interface("total", current).
		Interface("since_last_report", delta).
		Msg("Synchronisation stats")
	return delta
}

type InvalidSchedule struct {
	Spec       string
	Underlying error
}

func (e InvalidSchedule) Error() string {
	return fmt.Sprintf("Invalid stats report schedule [%s]: %v", e.Spec, e.Underlying)
}

func (e InvalidSchedule) Unwrap() error {
	return e.Underlying
}

type zeroLogCronLogger struct {
}

func (z zeroLogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	if log.Debug().Enabled() {
		formatted := formatTimeValues(keysAndValues)
		log.Debug().Fields(formatted).Msg(msg)
	}
}

func (z zeroLogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if log.Error().Enabled() {
		formatted := formatTimeValues(keysAndValues)
		log.Error().Err(err).Fields(formatted).Msg(msg)
	}
}

// formatTimeValues formats any time.Time values as RFC3339 *and*
// returns the even-odd idx key-value pair slice as a map
func formatTimeValues(keysAndValues []interface{}) map[string]interface{} {
	formattedArgs := make(map[string]interface{}, len(keysAndValues)/2)
	for idx := 0; idx < len(keysAndValues); idx += 2 {
		var key string
		if s, ok := keysAndValues[idx].(string); ok {
			key = s
		} else {
			key = fmt.Sprint(keysAndValues[idx])
		}
		valueIdx := idx + 1
		if len(keysAndValues) > valueIdx {
			value := keysAndValues[valueIdx]
			if t, ok := value.(time.Time); ok {
				value = t.Format(time.RFC3339)
			}
			formattedArgs[key] = value
		}
	}
	return formattedArgs
}
