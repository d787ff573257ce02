// Package reconcile applies decoded contract events to the projection store
// and repairs it from chain state.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/metrics"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

// ErrNoClaimEvent is returned when a transaction resync finds no claim event.
var ErrNoClaimEvent = errors.New("transaction has no claim event")

// Outcome describes what applying an event did to the store.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRepaired  Outcome = "repaired"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// ChainClient is the subset of the Sui client the engine reads chain state with.
type ChainClient interface {
	GetObject(ctx context.Context, objectID string) (*sui.ObjectData, error)
	GetPastObject(ctx context.Context, objectID string, version int64) (*sui.ObjectData, error)
	GetTransactionBlock(ctx context.Context, digest string) (*sui.TransactionBlock, error)
}

// EventDecoder turns Sui events into domain events.
type EventDecoder interface {
	Decode(ctx context.Context, ev *sui.Event) (domain.Event, error)
	DecodeRaw(ctx context.Context, raw json.RawMessage) (domain.Event, error)
}

// Enqueuer schedules out-of-band resync jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.ResyncJob, delay time.Duration) error
}

// Config holds per-network engine settings.
type Config struct {
	Network domain.Network
	Module  string
	// PropagationDelay is waited before fetching a missing parent envelope.
	PropagationDelay time.Duration
	// RequeueDelay delays jobs enqueued for events the live path had to drop.
	RequeueDelay time.Duration
}

// Engine applies events of one network. Events passed to HandleNotification
// must come from a single goroutine to keep delivery order.
type Engine struct {
	cfg     Config
	store   storage.Store
	chain   ChainClient
	decoder EventDecoder
	queue   Enqueuer
	log     *slog.Logger
}

// NewEngine creates a reconciliation engine. queue may be nil.
func NewEngine(
	cfg Config,
	store storage.Store,
	chain ChainClient,
	decoder EventDecoder,
	queue Enqueuer,
) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		chain:   chain,
		decoder: decoder,
		queue:   queue,
		log:     slog.Default().With("component", "reconcile", "network", cfg.Network),
	}
}

// Network returns the network this engine writes to.
func (e *Engine) Network() domain.Network {
	return e.cfg.Network
}

// HandleNotification decodes and applies one event from the live stream.
// Failures are logged and never returned: the stream must keep flowing.
func (e *Engine) HandleNotification(ctx context.Context, raw json.RawMessage) Outcome {
	network := e.cfg.Network.String()
	metrics.EventsReceived.WithLabelValues(network).Inc()

	ev, err := e.decoder.DecodeRaw(ctx, raw)
	if err != nil {
		e.log.Warn("Dropping undecodable event", "error", err)
		metrics.EventsApplied.WithLabelValues(network, "invalid", string(OutcomeDropped)).Inc()
		return OutcomeDropped
	}

	outcome, err := e.Apply(ctx, ev)
	if err != nil {
		e.log.Error("Failed to apply event",
			"kind", ev.Kind(),
			"tx_digest", ev.Digest(),
			"error", err,
		)
		e.enqueue(ctx, domain.ResyncKindTransaction, ev.Digest(), err)
	}
	return outcome
}

// Apply writes a decoded event to the store. Claims whose envelope is not yet
// known trigger causal repair from chain state. A repaired claim is recorded
// without decrementing remaining_count, since the rebuilt state already
// reflects it.
func (e *Engine) Apply(ctx context.Context, ev domain.Event) (outcome Outcome, err error) {
	defer func() {
		metrics.EventsApplied.WithLabelValues(e.cfg.Network.String(), string(ev.Kind()), string(outcome)).Inc()
	}()

	switch ev := ev.(type) {
	case *domain.EnvelopeCreated:
		return e.applyCreated(ctx, ev)
	case *domain.EnvelopeClaimed:
		return e.applyClaimed(ctx, ev)
	default:
		return OutcomeIgnored, nil
	}
}

func (e *Engine) applyCreated(ctx context.Context, ev *domain.EnvelopeCreated) (Outcome, error) {
	env := ev.Envelope(e.cfg.Network)
	inserted, err := e.store.Envelopes().Insert(ctx, env)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert envelope %s: %w", ev.EnvelopeID, err)
	}
	if !inserted {
		e.log.Debug("Envelope already recorded", "envelope_id", ev.EnvelopeID, "tx_digest", ev.TxDigest)
		return OutcomeDuplicate, nil
	}

	e.log.Info("Envelope created",
		"envelope_id", env.EnvelopeID,
		"owner", env.Owner,
		"coin_type", env.CoinType,
		"total_amount", env.TotalAmount.String(),
		"total_count", env.TotalCount,
	)
	return OutcomeApplied, nil
}

func (e *Engine) applyClaimed(ctx context.Context, ev *domain.EnvelopeClaimed) (Outcome, error) {
	claim := ev.Claim(e.cfg.Network)
	inserted, err := e.store.Claims().Insert(ctx, claim)
	if errors.Is(err, storage.ErrEnvelopeNotFound) {
		return e.repairAndClaim(ctx, claim)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert claim %s/%s: %w", ev.EnvelopeID, ev.TxDigest, err)
	}
	if !inserted {
		e.log.Debug("Claim already recorded", "envelope_id", ev.EnvelopeID, "tx_digest", ev.TxDigest)
		return OutcomeDuplicate, nil
	}

	decremented, err := e.store.Envelopes().DecrementRemaining(ctx, e.cfg.Network, ev.EnvelopeID)
	if err != nil {
		// The claim is durable but the counter is stale; chain state fixes it.
		e.enqueue(ctx, domain.ResyncKindEnvelope, ev.EnvelopeID, err)
		return OutcomeFailed, fmt.Errorf("decrement envelope %s: %w", ev.EnvelopeID, err)
	}
	if !decremented {
		metrics.DecrementAnomalies.WithLabelValues(e.cfg.Network.String()).Inc()
		e.log.Warn("Claim recorded for envelope with no shares left",
			"envelope_id", ev.EnvelopeID,
			"tx_digest", ev.TxDigest,
		)
	}

	e.log.Info("Envelope claimed",
		"envelope_id", ev.EnvelopeID,
		"claimer", ev.Claimer,
		"amount", ev.Amount.String(),
		"tx_digest", ev.TxDigest,
	)
	return OutcomeApplied, nil
}

// repairAndClaim rebuilds the missing parent envelope from chain state, then
// records the claim. The rebuilt row already reflects this claim, so the
// counter is not decremented again.
func (e *Engine) repairAndClaim(ctx context.Context, claim *domain.Claim) (Outcome, error) {
	e.log.Info("Claim arrived before its envelope, repairing",
		"envelope_id", claim.EnvelopeID,
		"tx_digest", claim.TxDigest,
		"delay", e.cfg.PropagationDelay,
	)

	if err := sleep(ctx, e.cfg.PropagationDelay); err != nil {
		return OutcomeFailed, err
	}
	if _, err := e.ResyncEnvelope(ctx, claim.EnvelopeID); err != nil {
		return OutcomeFailed, fmt.Errorf("causal repair of envelope %s: %w", claim.EnvelopeID, err)
	}

	inserted, err := e.store.Claims().Insert(ctx, claim)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert claim %s/%s after repair: %w", claim.EnvelopeID, claim.TxDigest, err)
	}
	if !inserted {
		return OutcomeDuplicate, nil
	}
	return OutcomeRepaired, nil
}

func (e *Engine) enqueue(ctx context.Context, kind domain.ResyncKind, target string, cause error) {
	if e.queue == nil || target == "" {
		return
	}
	job := &domain.ResyncJob{
		Network: e.cfg.Network,
		Kind:    kind,
		Target:  target,
		Reason:  "live ingestion failed",
		LastErr: cause.Error(),
	}
	if err := e.queue.Enqueue(ctx, job, e.cfg.RequeueDelay); err != nil {
		e.log.Error("Failed to enqueue resync", "kind", kind, "target", target, "error", err)
		return
	}
	e.log.Info("Queued resync", "kind", kind, "target", target)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
