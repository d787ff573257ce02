package sui

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ParseBalance reads a Balance<T> field of a Move object. Nodes render it in
// several shapes; they are probed in order:
//
//	1000                              raw integer
//	"1000"                            numeric string
//	{"fields":{"value":"1000"}}       nested struct wrapper
//	{"value":"1000"}                  flattened wrapper
//
// Anything else yields zero.
func ParseBalance(raw json.RawMessage) decimal.Decimal {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return decimal.Zero
	}

	switch trimmed[0] {
	case '"':
		if d, ok := ParseNumber(trimmed); ok && d.IsInteger() {
			return d
		}
		return decimal.Zero
	case '{':
		var wrapper struct {
			Fields *struct {
				Value json.RawMessage `json:"value"`
			} `json:"fields"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return decimal.Zero
		}
		if wrapper.Fields != nil && !isNull(wrapper.Fields.Value) {
			return ParseBalance(wrapper.Fields.Value)
		}
		if !isNull(wrapper.Value) {
			return ParseBalance(wrapper.Value)
		}
		return decimal.Zero
	default:
		if d, ok := ParseNumber(trimmed); ok && d.IsInteger() {
			return d
		}
		return decimal.Zero
	}
}
