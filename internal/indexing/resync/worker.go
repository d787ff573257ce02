// Package resync drains the out-of-band reconciliation queue of a network.
package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/metrics"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
)

var errUnknownKind = errors.New("unknown resync kind")

// Queue is the delayed job queue the worker drains.
type Queue interface {
	PopDue(ctx context.Context) (*domain.ResyncJob, error)
	Enqueue(ctx context.Context, job *domain.ResyncJob, delay time.Duration) error
	Count(ctx context.Context) (int, error)
}

// Reconciler runs the two resync paths.
type Reconciler interface {
	ResyncEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	ResyncTransaction(ctx context.Context, digest string) (*reconcile.TransactionResync, error)
}

// DepthObserver receives the queue depth after every poll.
type DepthObserver interface {
	SetQueueDepth(network domain.Network, depth int)
}

// WorkerConfig holds configuration for the resync worker.
type WorkerConfig struct {
	PollInterval time.Duration // Sleep when queue empty (default: 5s)
	Strategy     RetryStrategy // Requeue policy (default: DefaultBackoff(5, nil))
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 5 * time.Second,
		Strategy:     DefaultBackoff(5, nil),
	}
}

// Worker processes resync jobs of one network.
type Worker struct {
	cfg      WorkerConfig
	network  domain.Network
	queue    Queue
	engine   Reconciler
	observer DepthObserver
	log      *slog.Logger
}

// NewWorker creates a new resync worker. observer may be nil.
func NewWorker(
	cfg WorkerConfig,
	network domain.Network,
	queue Queue,
	engine Reconciler,
	observer DepthObserver,
) *Worker {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Strategy == nil {
		cfg.Strategy = defaults.Strategy
	}
	return &Worker{
		cfg:      cfg,
		network:  network,
		queue:    queue,
		engine:   engine,
		observer: observer,
		log:      slog.Default().With("component", "resync", "network", network),
	}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting resync worker", "poll_interval", w.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Resync worker stopped")
			return nil
		default:
		}

		found, err := w.ProcessNext(ctx)
		if err != nil {
			w.log.Error("Failed to pop resync job", "error", err)
		}
		if found && err == nil {
			continue
		}

		// Queue empty or unreachable, sleep
		select {
		case <-ctx.Done():
			w.log.Info("Resync worker stopped")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// ProcessNext runs the next due job, if any. It reports whether a job was
// found. Job failures are handled by requeueing or dropping and are not
// returned; only queue errors are.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.PopDue(ctx)
	if err != nil {
		return false, err
	}
	w.reportDepth(ctx)
	if job == nil {
		return false, nil
	}

	log := w.log.With("job", job.ID, "kind", job.Kind, "target", job.Target, "attempt", job.Attempts+1)
	log.Info("Processing resync job")

	runErr := w.run(ctx, job)
	if runErr == nil {
		log.Info("Resync job completed")
		return true, nil
	}
	if ctx.Err() != nil {
		// Shutting down: put the job back untouched.
		w.requeue(context.WithoutCancel(ctx), job, 0)
		return true, nil
	}

	job.Attempts++
	job.LastErr = runErr.Error()
	if !w.cfg.Strategy.ShouldRetry(runErr, job.Attempts) {
		log.Error("Dropping resync job", "error", runErr)
		return true, nil
	}

	delay := w.cfg.Strategy.GetDelay(job.Attempts - 1)
	log.Warn("Resync job failed, retrying", "delay", delay, "error", runErr)
	w.requeue(ctx, job, delay)
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *domain.ResyncJob) error {
	switch job.Kind {
	case domain.ResyncKindEnvelope:
		_, err := w.engine.ResyncEnvelope(ctx, job.Target)
		return err
	case domain.ResyncKindTransaction:
		_, err := w.engine.ResyncTransaction(ctx, job.Target)
		return err
	}
	return fmt.Errorf("%w: %q", errUnknownKind, job.Kind)
}

func (w *Worker) requeue(ctx context.Context, job *domain.ResyncJob, delay time.Duration) {
	if err := w.queue.Enqueue(ctx, job, delay); err != nil {
		w.log.Error("Failed to re-queue resync job", "job", job.ID, "error", err)
	}
	w.reportDepth(ctx)
}

func (w *Worker) reportDepth(ctx context.Context) {
	depth, err := w.queue.Count(ctx)
	if err != nil {
		return
	}
	metrics.ResyncQueueDepth.WithLabelValues(w.network.String()).Set(float64(depth))
	if w.observer != nil {
		w.observer.SetQueueDepth(w.network, depth)
	}
}
