package sui

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Move u64 values are rendered as JSON strings by the node, but older events
// and hand-built payloads carry plain numbers. The helpers below accept both
// and report whether the value was usable.

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// ParseString returns raw as a string if it is a JSON string.
func ParseString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ParseNumber accepts a JSON number or a numeric JSON string.
func ParseNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	if isNull(raw) {
		return decimal.Zero, false
	}
	text := string(bytes.TrimSpace(raw))
	if s, ok := ParseString(raw); ok {
		text = s
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseInt accepts an integral JSON number or numeric string that fits in int64.
func ParseInt(raw json.RawMessage) (int64, bool) {
	d, ok := ParseNumber(raw)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	n, err := strconv.ParseInt(d.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseBool accepts a JSON boolean or the strings "true" and "false".
func ParseBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if s, ok := ParseString(raw); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}

// ParseTimestampMs converts a millisecond epoch into UTC time. Unparseable
// values map to the Unix epoch.
func ParseTimestampMs(raw json.RawMessage) (time.Time, bool) {
	ms, ok := ParseInt(raw)
	if !ok || ms < 0 {
		return time.Unix(0, 0).UTC(), false
	}
	return time.UnixMilli(ms).UTC(), true
}
