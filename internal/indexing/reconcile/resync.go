package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/metrics"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

// ObjectState is the envelope state read from a live chain object.
type ObjectState struct {
	Owner                string
	CoinType             string
	TotalAmount          decimal.Decimal
	TotalCount           int64
	RemainingCount       int64
	Mode                 domain.EnvelopeMode
	RequiresVerification bool
	Balance              decimal.Decimal
}

// Active reports whether the envelope can still be claimed.
func (s ObjectState) Active() bool {
	return s.RemainingCount > 0 && s.Balance.IsPositive()
}

func firstField(fields map[string]json.RawMessage, names ...string) json.RawMessage {
	for _, name := range names {
		if raw, ok := fields[name]; ok {
			return raw
		}
	}
	return nil
}

// ParseObjectState reads envelope fields from a Move object. Missing or
// malformed fields default to zero values, except a missing total count which
// defaults to the remaining count.
func ParseObjectState(obj *sui.ObjectData, module string) (*ObjectState, error) {
	if obj.Content == nil || obj.Content.DataType != "moveObject" {
		return nil, fmt.Errorf("%w: %s is not a move object", sui.ErrWrongObjectType, obj.ObjectID)
	}
	typeStr := obj.Type
	if typeStr == "" {
		typeStr = obj.Content.Type
	}
	if module != "" && !sui.IsModuleType(typeStr, module) {
		return nil, fmt.Errorf("%w: %s has type %s", sui.ErrWrongObjectType, obj.ObjectID, typeStr)
	}

	f := obj.Content.Fields
	state := &ObjectState{CoinType: domain.CoinTypeUnknown}

	if coinType, err := sui.ExtractTypeParam(typeStr); err == nil {
		state.CoinType = coinType
	}
	state.Owner, _ = sui.ParseString(firstField(f, "owner", "creator"))
	if v, ok := sui.ParseNumber(firstField(f, "total_amount", "amount")); ok && !v.IsNegative() {
		state.TotalAmount = v
	}
	if v, ok := sui.ParseInt(firstField(f, "total_count", "count")); ok && v > 0 {
		state.TotalCount = v
	}
	if v, ok := sui.ParseInt(firstField(f, "remaining_count", "remaining")); ok {
		state.RemainingCount = v
	}
	if v, ok := sui.ParseInt(f["mode"]); ok && v == int64(domain.EnvelopeModeRandom) {
		state.Mode = domain.EnvelopeModeRandom
	}
	state.RequiresVerification, _ = sui.ParseBool(f["requires_verification"])
	state.Balance = sui.ParseBalance(f["balance"])

	if state.RemainingCount < 0 {
		state.RemainingCount = 0
	}
	if state.TotalCount == 0 {
		// No usable total on chain; the remaining count is the best lower bound.
		state.TotalCount = state.RemainingCount
	}
	state.RemainingCount = domain.ClampCount(state.RemainingCount, state.TotalCount)
	return state, nil
}

// ResyncEnvelope reconciles one envelope against its live chain object. An
// existing row only has remaining_count and is_active overwritten; a missing
// row is inserted.
func (e *Engine) ResyncEnvelope(ctx context.Context, envelopeID string) (env *domain.Envelope, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ResyncTotal.WithLabelValues(e.cfg.Network.String(), string(domain.ResyncKindEnvelope), outcome).Inc()
	}()

	obj, err := e.chain.GetObject(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	state, err := ParseObjectState(obj, e.cfg.Module)
	if err != nil {
		return nil, err
	}
	active := state.Active()

	repo := e.store.Envelopes()
	existing, err := repo.Get(ctx, e.cfg.Network, envelopeID)
	switch {
	case err == nil:
		return e.updateEnvelope(ctx, existing, state.RemainingCount, active)
	case !errors.Is(err, storage.ErrEnvelopeNotFound):
		return nil, fmt.Errorf("load envelope %s: %w", envelopeID, err)
	}

	digest, createdAt, err := e.creationTx(ctx, obj)
	if err != nil {
		return nil, err
	}
	env = &domain.Envelope{
		EnvelopeID:           envelopeID,
		Network:              e.cfg.Network,
		Owner:                state.Owner,
		CoinType:             state.CoinType,
		TotalAmount:          state.TotalAmount,
		TotalCount:           state.TotalCount,
		Mode:                 state.Mode,
		RemainingCount:       state.RemainingCount,
		IsActive:             active,
		RequiresVerification: state.RequiresVerification,
		CreatedAt:            createdAt,
		TxDigest:             digest,
	}
	env.ClampRemaining()
	inserted, err := repo.Insert(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("insert envelope %s: %w", envelopeID, err)
	}
	if !inserted {
		// Created concurrently; fall back to an in-place update.
		existing, err := repo.Get(ctx, e.cfg.Network, envelopeID)
		if err != nil {
			return nil, fmt.Errorf("load envelope %s: %w", envelopeID, err)
		}
		return e.updateEnvelope(ctx, existing, state.RemainingCount, active)
	}

	e.log.Info("Envelope rebuilt from chain",
		"envelope_id", envelopeID,
		"remaining_count", env.RemainingCount,
		"is_active", env.IsActive,
	)
	return env, nil
}

func (e *Engine) updateEnvelope(
	ctx context.Context,
	env *domain.Envelope,
	remaining int64,
	active bool,
) (*domain.Envelope, error) {
	remaining = domain.ClampCount(remaining, env.TotalCount)
	if _, err := e.store.Envelopes().UpdateState(ctx, e.cfg.Network, env.EnvelopeID, remaining, active); err != nil {
		return nil, fmt.Errorf("update envelope %s: %w", env.EnvelopeID, err)
	}
	env.RemainingCount = remaining
	env.IsActive = active

	e.log.Info("Envelope resynced",
		"envelope_id", env.EnvelopeID,
		"remaining_count", remaining,
		"is_active", active,
	)
	return env, nil
}

// creationTx resolves the digest and time of the transaction that created a
// shared envelope. The object at its initial shared version was last written
// by that transaction. Lookups the node cannot answer fall back to
// TxDigestUnknown at the Unix epoch; transport errors are returned.
func (e *Engine) creationTx(ctx context.Context, obj *sui.ObjectData) (string, time.Time, error) {
	epoch := time.Unix(0, 0).UTC()

	version, ok := sui.SharedInitialVersion(obj.Owner)
	if !ok {
		e.log.Warn("Envelope is not a shared object, creation unknown", "envelope_id", obj.ObjectID)
		return domain.TxDigestUnknown, epoch, nil
	}
	past, err := e.chain.GetPastObject(ctx, obj.ObjectID, version)
	switch {
	case errors.Is(err, sui.ErrVersionNotFound):
		e.log.Warn("Creation version pruned, creation unknown",
			"envelope_id", obj.ObjectID,
			"version", version,
		)
		return domain.TxDigestUnknown, epoch, nil
	case err != nil:
		return "", time.Time{}, err
	case past.PreviousTransaction == "":
		return domain.TxDigestUnknown, epoch, nil
	}

	digest := past.PreviousTransaction
	tx, err := e.chain.GetTransactionBlock(ctx, digest)
	switch {
	case errors.Is(err, sui.ErrTransactionNotFound):
		return digest, epoch, nil
	case err != nil:
		return "", time.Time{}, err
	}
	createdAt, _ := sui.ParseTimestampMs(tx.TimestampMs)
	return digest, createdAt, nil
}

// TransactionResync summarises a resync by transaction digest.
type TransactionResync struct {
	Digest     string `json:"digest"`
	Created    int    `json:"created"`
	Claims     int    `json:"claims"`
	Applied    int    `json:"applied"`
	Duplicates int    `json:"duplicates"`
}

// ResyncTransaction re-applies the envelope events of a transaction. Created
// events are applied before claims so a claim can find its parent in the
// same transaction.
func (e *Engine) ResyncTransaction(ctx context.Context, digest string) (result *TransactionResync, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ResyncTotal.WithLabelValues(e.cfg.Network.String(), string(domain.ResyncKindTransaction), outcome).Inc()
	}()

	tx, err := e.chain.GetTransactionBlock(ctx, digest)
	if err != nil {
		return nil, err
	}

	var created []*domain.EnvelopeCreated
	var claimed []*domain.EnvelopeClaimed
	for i := range tx.Events {
		raw := &tx.Events[i]
		if e.cfg.Module != "" && !sui.IsModuleType(raw.Type, e.cfg.Module) {
			continue
		}
		if raw.ID.TxDigest == "" {
			raw.ID.TxDigest = tx.Digest
		}
		if len(raw.TimestampMs) == 0 {
			raw.TimestampMs = tx.TimestampMs
		}
		ev, err := e.decoder.Decode(ctx, raw)
		if err != nil {
			e.log.Warn("Skipping undecodable event", "tx_digest", digest, "error", err)
			continue
		}
		switch ev := ev.(type) {
		case *domain.EnvelopeCreated:
			created = append(created, ev)
		case *domain.EnvelopeClaimed:
			claimed = append(claimed, ev)
		}
	}
	if len(claimed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoClaimEvent, digest)
	}

	result = &TransactionResync{Digest: digest, Created: len(created), Claims: len(claimed)}
	for _, ev := range created {
		if _, err := e.Apply(ctx, ev); err != nil {
			return result, err
		}
	}
	for _, ev := range claimed {
		outcome, err := e.Apply(ctx, ev)
		if err != nil {
			return result, err
		}
		switch outcome {
		case OutcomeDuplicate:
			result.Duplicates++
		case OutcomeApplied, OutcomeRepaired:
			result.Applied++
		}
	}

	e.log.Info("Transaction resynced",
		"tx_digest", digest,
		"claims", result.Claims,
		"applied", result.Applied,
		"duplicates", result.Duplicates,
	)
	return result, nil
}
