// Package codec provides best-effort decoding of MQTT payloads.
//
// Payloads arriving from the zigbee2mqtt bridge are externally controlled and
// not guaranteed to be well-formed JSON. TryDecode never fails loudly: a
// payload either decodes to a structured value or is explicitly reported as
// not decodable, forcing every call site to handle malformed input
// deliberately instead of parse-and-catch.
package codec

import (
	"bytes"
	"encoding/json"
)

// TryDecode attempts to parse raw as JSON.
//
// Returns the decoded value and true on success, or nil and false if the
// payload is not structured. It never panics and never returns an error;
// callers must branch on the second result.
//
// Decoded values use the generic JSON mapping: map[string]any for objects,
// []any for arrays, string/float64/bool/nil for scalars.
func TryDecode(raw []byte) (any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, false
	}
	return value, true
}

// TryDecodeObject attempts to parse raw as a JSON object.
//
// Returns the object and true only when the payload decodes to a JSON
// object; scalars and arrays report false. Used where the wire contract
// expects key/value payloads (bridge log events, entity telemetry).
func TryDecodeObject(raw []byte) (map[string]any, bool) {
	value, ok := TryDecode(raw)
	if !ok {
		return nil, false
	}
	obj, ok := value.(map[string]any)
	return obj, ok
}
