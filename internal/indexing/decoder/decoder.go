// Package decoder turns untyped contract events into domain events.
package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/metrics"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
)

const (
	createdSuffix = "EnvelopeCreated"
	claimedSuffix = "EnvelopeClaimed"
)

// ErrMalformedEvent is returned when an event cannot be keyed and must be dropped.
var ErrMalformedEvent = errors.New("malformed event")

// CoinTypeResolver looks up the coin type of an envelope object on chain.
type CoinTypeResolver interface {
	ResolveCoinType(ctx context.Context, objectID string) (string, error)
}

// Decoder decodes events of one network.
type Decoder struct {
	network  domain.Network
	resolver CoinTypeResolver
	log      *slog.Logger
}

// New creates a decoder. resolver may be nil, in which case coin types that
// are absent from the event type stay unresolved.
func New(network domain.Network, resolver CoinTypeResolver) *Decoder {
	return &Decoder{
		network:  network,
		resolver: resolver,
		log:      slog.Default().With("component", "decoder", "network", network),
	}
}

// DecodeRaw decodes a notification payload.
func (d *Decoder) DecodeRaw(ctx context.Context, raw json.RawMessage) (domain.Event, error) {
	var ev sui.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.reject()
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return d.Decode(ctx, &ev)
}

// Decode maps a Sui event onto the closed set of domain events.
func (d *Decoder) Decode(ctx context.Context, ev *sui.Event) (domain.Event, error) {
	switch {
	case strings.Contains(ev.Type, createdSuffix):
		return d.decodeCreated(ctx, ev)
	case strings.Contains(ev.Type, claimedSuffix):
		return d.decodeClaimed(ev)
	default:
		return &domain.UnknownEvent{Type: ev.Type, TxDigest: ev.ID.TxDigest}, nil
	}
}

// fields wraps parsedJson and records which fields fell back to defaults.
type fields struct {
	values    map[string]json.RawMessage
	defaulted []string
}

func parseFields(raw json.RawMessage) (*fields, error) {
	f := &fields{}
	if err := json.Unmarshal(raw, &f.values); err != nil || f.values == nil {
		return nil, fmt.Errorf("%w: parsedJson is not an object", ErrMalformedEvent)
	}
	return f, nil
}

func (f *fields) key() (string, error) {
	id, ok := sui.ParseString(f.values["id"])
	if !ok || id == "" {
		return "", fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	return id, nil
}

func (f *fields) str(name string) string {
	s, ok := sui.ParseString(f.values[name])
	if !ok {
		f.defaulted = append(f.defaulted, name)
	}
	return s
}

func (f *fields) amount(name string) decimal.Decimal {
	v, ok := sui.ParseNumber(f.values[name])
	if !ok || v.IsNegative() || !v.IsInteger() {
		f.defaulted = append(f.defaulted, name)
		return decimal.Zero
	}
	return v
}

func (f *fields) count(name string) int64 {
	v, ok := sui.ParseInt(f.values[name])
	if !ok || v < 0 {
		f.defaulted = append(f.defaulted, name)
		return 0
	}
	return v
}

func (f *fields) mode(name string) domain.EnvelopeMode {
	v, ok := sui.ParseInt(f.values[name])
	if !ok || (v != int64(domain.EnvelopeModeEqual) && v != int64(domain.EnvelopeModeRandom)) {
		f.defaulted = append(f.defaulted, name)
		return domain.EnvelopeModeEqual
	}
	return domain.EnvelopeMode(v)
}

// optionalBool is false when absent and only flagged when present but malformed.
func (f *fields) optionalBool(name string) bool {
	raw, present := f.values[name]
	if !present {
		return false
	}
	v, ok := sui.ParseBool(raw)
	if !ok {
		f.defaulted = append(f.defaulted, name)
	}
	return v
}

func (d *Decoder) decodeCreated(ctx context.Context, ev *sui.Event) (domain.Event, error) {
	if ev.ID.TxDigest == "" {
		d.reject()
		return nil, fmt.Errorf("%w: missing tx digest", ErrMalformedEvent)
	}
	f, err := parseFields(ev.ParsedJSON)
	if err != nil {
		d.reject()
		return nil, err
	}
	id, err := f.key()
	if err != nil {
		d.reject()
		return nil, err
	}

	created := &domain.EnvelopeCreated{
		EnvelopeID:           id,
		Owner:                f.str("owner"),
		Amount:               f.amount("amount"),
		Count:                f.count("count"),
		Mode:                 f.mode("mode"),
		RequiresVerification: f.optionalBool("requires_verification"),
		TxDigest:             ev.ID.TxDigest,
	}

	ts, ok := sui.ParseTimestampMs(ev.TimestampMs)
	if !ok {
		f.defaulted = append(f.defaulted, "timestampMs")
	}
	created.Timestamp = ts

	created.CoinType = d.coinType(ctx, ev.Type, id)
	created.Defaulted = f.defaulted
	d.reportDefaults(created.Kind(), id, ev.ID.TxDigest, f.defaulted)
	return created, nil
}

func (d *Decoder) decodeClaimed(ev *sui.Event) (domain.Event, error) {
	if ev.ID.TxDigest == "" {
		d.reject()
		return nil, fmt.Errorf("%w: missing tx digest", ErrMalformedEvent)
	}
	f, err := parseFields(ev.ParsedJSON)
	if err != nil {
		d.reject()
		return nil, err
	}
	id, err := f.key()
	if err != nil {
		d.reject()
		return nil, err
	}

	claimed := &domain.EnvelopeClaimed{
		EnvelopeID: id,
		Claimer:    f.str("claimer"),
		Amount:     f.amount("amount"),
		TxDigest:   ev.ID.TxDigest,
	}

	ts, ok := sui.ParseTimestampMs(ev.TimestampMs)
	if !ok {
		f.defaulted = append(f.defaulted, "timestampMs")
	}
	claimed.Timestamp = ts

	claimed.Defaulted = f.defaulted
	d.reportDefaults(claimed.Kind(), id, ev.ID.TxDigest, f.defaulted)
	return claimed, nil
}

// coinType extracts the generic parameter of the event type, falling back to
// the envelope object's own type. Returns "" when neither yields a value.
func (d *Decoder) coinType(ctx context.Context, eventType, objectID string) string {
	if coinType, err := sui.ExtractTypeParam(eventType); err == nil {
		return coinType
	}
	if d.resolver == nil {
		return ""
	}
	coinType, err := d.resolver.ResolveCoinType(ctx, objectID)
	if err != nil {
		d.log.Warn("Failed to resolve coin type", "envelope_id", objectID, "error", err)
		return ""
	}
	return coinType
}

func (d *Decoder) reject() {
	metrics.DecodeErrors.WithLabelValues(d.network.String()).Inc()
}

func (d *Decoder) reportDefaults(kind domain.EventKind, id, digest string, defaulted []string) {
	if len(defaulted) == 0 {
		return
	}
	for _, name := range defaulted {
		metrics.DecodeDefaultedFields.WithLabelValues(d.network.String(), name).Inc()
	}
	d.log.Warn("Event fields defaulted",
		"kind", kind,
		"envelope_id", id,
		"tx_digest", digest,
		"fields", defaulted,
	)
}
