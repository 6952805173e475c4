package worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lloydmeta/reqindex/internal/domain/stream"
	"github.com/lloydmeta/reqindex/worker/config"
)

const defaultFetchErrorWait = time.Second

// A work loop that fetches Messages from Subscriptions and hands them to a Handler. Run() the
// returned loop to begin processing.
//
// Every Subscription gets its own fetcher, and every partition its own worker, so Messages of a
// partition are handled one at a time in the order they arrive, while partitions (and tenants)
// proceed independently. A Message is only committed after the Handler is done with it.
type WorkLoop struct {
	subscriptions   []stream.Subscription
	handler         Handler
	partitionBuffer int
	fetchErrorWait  time.Duration
	loopStopTimeout time.Duration

	// Handling is never cancelled by a shutdown; fetching is
	processingCtx context.Context
	fetchCtx      context.Context
	cancelFetch   context.CancelFunc

	stopSignal       uint32
	startOnce        sync.Once
	loopStopNotifier chan bool
}

func NewWorkLoop(config config.Worker, subscriptions []stream.Subscription, handler Handler) *WorkLoop {
	fetchCtx, cancelFetch := context.WithCancel(context.Background())
	fetchErrorWait := config.FetchErrorWait
	if fetchErrorWait <= 0 {
		fetchErrorWait = defaultFetchErrorWait
	}
	return &WorkLoop{
		subscriptions:    subscriptions,
		handler:          handler,
		partitionBuffer:  int(config.PartitionBuffer),
		fetchErrorWait:   fetchErrorWait,
		loopStopTimeout:  config.LoopStopTimeout,
		processingCtx:    context.Background(),
		fetchCtx:         fetchCtx,
		cancelFetch:      cancelFetch,
		stopSignal:       0,
		loopStopNotifier: make(chan bool, 1),
	}
}

// Runs the work loop and listens to sig int and sig term to gracefully exit, making sure
// notifications being handled are finished and committed
func (w *WorkLoop) Run() error {
	w.Start()

	// Wait for interrupt signals to gracefully shut the loop down with a configurable timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Work loop shutdown initialised ...")

	ctx, cancel := context.WithTimeout(context.Background(), w.loopStopTimeout)
	defer cancel()
	if err := w.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Loop did not exit in time, forcefully killing.")
	}

	log.Info().Msg("Work loop gracefully exiting")
	return nil
}

// Start begins processing in the background. Calling it more than once has no effect.
func (w *WorkLoop) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Shutdown stops fetching, waits for the Messages being handled to be finished and committed,
// then closes the Subscriptions.
//
// Returns the context's error if that takes too long.
func (w *WorkLoop) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.loopStopNotifier:
		return nil
	}
}

func (w *WorkLoop) run() {
	var g errgroup.Group
	for i := range w.subscriptions {
		subscription := w.subscriptions[i]
		g.Go(func() error {
			w.consume(subscription)
			return nil
		})
	}
	_ = g.Wait()

	for _, subscription := range w.subscriptions {
		if err := subscription.Close(); err != nil {
			log.Error().Err(err).Str("topic", subscription.Topic()).Msg("Failed to close subscription")
		}
	}
	w.loopStopNotifier <- true
}

// consume fetches from one Subscription until stopped, demuxing Messages to per-partition workers
func (w *WorkLoop) consume(subscription stream.Subscription) {
	partitions := make(map[stream.Partition]chan stream.Message)
	var workers sync.WaitGroup
	defer func() {
		for _, ch := range partitions {
			close(ch)
		}
		workers.Wait()
	}()

	log.Info().Str("topic", subscription.Topic()).Msg("Consuming")
	for !w.isStopped() {
		msg, err := subscription.Fetch(w.fetchCtx)
		if err != nil {
			if w.isStopped() || errors.Is(err, stream.ErrClosed) {
				return
			}
			log.Error().
				Err(err).
				Str("topic", subscription.Topic()).
				Dur("retry_in", w.fetchErrorWait).
				Msg("Failed to fetch, will retry")
			select {
			case <-w.fetchCtx.Done():
				return
			case <-time.After(w.fetchErrorWait):
			}
			continue
		}

		partition, ok := partitions[msg.Partition]
		if !ok {
			partition = make(chan stream.Message, w.partitionBuffer)
			partitions[msg.Partition] = partition
			workers.Add(1)
			go func() {
				defer workers.Done()
				w.work(subscription, partition)
			}()
		}
		partition <- msg
	}
}

// work handles the Messages of one partition, in order
func (w *WorkLoop) work(subscription stream.Subscription, messages <-chan stream.Message) {
	for msg := range messages {
		if w.isStopped() {
			// fetched but not started, so left uncommitted to be delivered again
			continue
		}
		disposition := w.handler.Handle(w.processingCtx, msg)
		if err := subscription.Commit(w.processingCtx, msg); err != nil {
			log.Error().
				Err(err).
				Str("position", msg.Position()).
				Str("disposition", disposition.String()).
				Msg("Failed to commit")
		}
	}
}

func (w *WorkLoop) isStopped() bool {
	return atomic.LoadUint32(&w.stopSignal) > 0
}

func (w *WorkLoop) stop() {
	atomic.StoreUint32(&w.stopSignal, 1)
	w.cancelFetch()
}
