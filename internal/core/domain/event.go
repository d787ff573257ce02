package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags the variants of Event.
type EventKind string

const (
	EventKindCreated EventKind = "created"
	EventKindClaimed EventKind = "claimed"
	EventKindUnknown EventKind = "unknown"
)

// Event is a decoded contract event. The set of implementations is closed:
// *EnvelopeCreated, *EnvelopeClaimed and *UnknownEvent.
type Event interface {
	Kind() EventKind
	Digest() string
	isEvent()
}

// EnvelopeCreated is emitted when an envelope object is created on chain.
type EnvelopeCreated struct {
	EnvelopeID           string
	Owner                string
	CoinType             string
	Amount               decimal.Decimal
	Count                int64
	Mode                 EnvelopeMode
	RequiresVerification bool
	Timestamp            time.Time
	TxDigest             string

	// Defaulted lists payload fields that were missing or malformed and fell back to zero.
	Defaulted []string
}

func (e *EnvelopeCreated) Kind() EventKind { return EventKindCreated }
func (e *EnvelopeCreated) Digest() string  { return e.TxDigest }
func (e *EnvelopeCreated) isEvent()        {}

// Envelope builds the initial projection row for the created event.
func (e *EnvelopeCreated) Envelope(network Network) *Envelope {
	coinType := e.CoinType
	if coinType == "" {
		coinType = CoinTypeUnknown
	}
	return &Envelope{
		EnvelopeID:           e.EnvelopeID,
		Network:              network,
		Owner:                e.Owner,
		CoinType:             coinType,
		TotalAmount:          e.Amount,
		TotalCount:           e.Count,
		Mode:                 e.Mode,
		RemainingCount:       e.Count,
		IsActive:             true,
		RequiresVerification: e.RequiresVerification,
		CreatedAt:            e.Timestamp,
		TxDigest:             e.TxDigest,
	}
}

// EnvelopeClaimed is emitted for every successful claim of a share.
type EnvelopeClaimed struct {
	EnvelopeID string
	Claimer    string
	Amount     decimal.Decimal
	Timestamp  time.Time
	TxDigest   string

	Defaulted []string
}

func (e *EnvelopeClaimed) Kind() EventKind { return EventKindClaimed }
func (e *EnvelopeClaimed) Digest() string  { return e.TxDigest }
func (e *EnvelopeClaimed) isEvent()        {}

// Claim builds the claim row for the event.
func (e *EnvelopeClaimed) Claim(network Network) *Claim {
	return &Claim{
		EnvelopeID: e.EnvelopeID,
		Network:    network,
		Claimer:    e.Claimer,
		Amount:     e.Amount,
		ClaimedAt:  e.Timestamp,
		TxDigest:   e.TxDigest,
	}
}

// UnknownEvent is any other event emitted by the module. It is ignored.
type UnknownEvent struct {
	Type     string
	TxDigest string
}

func (e *UnknownEvent) Kind() EventKind { return EventKindUnknown }
func (e *UnknownEvent) Digest() string  { return e.TxDigest }
func (e *UnknownEvent) isEvent()        {}
