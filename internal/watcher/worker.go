package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Worker drains the queue one event at a time
type Worker struct {
	queue    Queue
	handler  *Handler
	notifier Notifier
	logger   zerolog.Logger
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Counts are running totals of a worker
type Counts struct {
	Processed uint64
	Failed    uint64
}

func NewWorker(logger zerolog.Logger, queue Queue, handler *Handler, notifier Notifier, interval time.Duration) *Worker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		queue:    queue,
		handler:  handler,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start requeues events left in flight and begins polling
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.interval).Msg("starting worker")

	if n, err := w.queue.Recover(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("failed to requeue in-flight events")
	} else if n > 0 {
		w.logger.Info().Int("events", n).Msg("requeued in-flight events")
	}

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop waits for the current job to finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
}

func (w *Worker) Counts() Counts {
	return Counts{Processed: w.processed.Load(), Failed: w.failed.Load()}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		default:
		}

		handled, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to read queue")
		}
		if handled {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-time.After(w.interval):
		}
	}
}

// ProcessNext handles at most one event. It reports whether an event was
// taken; job failures are logged and published, not returned.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	payload, err := w.queue.Next(ctx)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var res Result
	ev, err := ParseEvent(payload)
	if err != nil {
		res = invalidResult(payload, err)
	} else {
		res = w.handler.Process(ctx, ev)
	}

	// an interrupted job stays in flight and is requeued on the next start
	if ctx.Err() != nil {
		w.logger.Warn().Str("job_id", res.JobID).Msg("job interrupted")
		return true, nil
	}

	w.processed.Add(1)
	w.report(res)

	if err := w.notifier.Publish(ctx, res); err != nil {
		w.logger.Warn().Err(err).Str("job_id", res.JobID).Msg("failed to publish result")
	}
	if err := w.queue.Ack(ctx, payload); err != nil {
		w.logger.Warn().Err(err).Str("job_id", res.JobID).Msg("failed to acknowledge event")
	}

	return true, nil
}

func (w *Worker) report(res Result) {
	switch res.Status {
	case StatusFailed:
		w.failed.Add(1)
		w.logger.Error().
			Err(res.Err()).
			Str("job_id", res.JobID).
			Str("object", res.Name).
			Str("kind", res.ErrorKind).
			Msg("job failed")
	case StatusSkipped:
		w.logger.Debug().
			Str("job_id", res.JobID).
			Str("object", res.Name).
			Msg("object skipped")
	default:
		w.logger.Info().
			Str("job_id", res.JobID).
			Str("object", res.Name).
			Str("output", res.Output).
			Int64("elapsed_ms", res.ElapsedMS).
			Msg("job done")
	}
}
