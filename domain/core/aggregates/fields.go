package aggregates

import (
	"bytes"
	"encoding/json"
)

// rawObject is a decoded JSON object whose values are kept verbatim until a
// typed field claims them.
type rawObject map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (rawObject, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj rawObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		obj = rawObject{}
	}
	return obj, true
}

// take removes key from o and hands its raw value to fn. When fn rejects the
// value it is put back so it survives a round trip untouched.
func (o rawObject) take(key string, fn func(json.RawMessage) bool) {
	raw, ok := o[key]
	if !ok {
		return
	}
	if fn(raw) {
		delete(o, key)
	}
}

// drop removes a key without looking at it.
func (o rawObject) drop(keys ...string) {
	for _, k := range keys {
		delete(o, k)
	}
}

// Typed field decoders. Each accepts only a non-zero value of the right
// JSON type; anything else stays raw.

func stringField(dst *string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var s string
		if json.Unmarshal(raw, &s) != nil || s == "" {
			return false
		}
		*dst = s
		return true
	}
}

func boolField(dst *bool) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var b bool
		if json.Unmarshal(raw, &b) != nil || !b {
			return false
		}
		*dst = b
		return true
	}
}

func floatField(dst *float64) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var f float64
		if json.Unmarshal(raw, &f) != nil || f == 0 {
			return false
		}
		*dst = f
		return true
	}
}

func bagField(dst *map[string]interface{}) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return false
		}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var m map[string]interface{}
		if dec.Decode(&m) != nil {
			return false
		}
		*dst = m
		return true
	}
}

// encodeObject merges typed fields over the preserved raw values.
func encodeObject(extra rawObject, fields map[string]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(extra)+len(fields))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

func cloneBag(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneBag(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func cloneRaw(o rawObject) rawObject {
	if len(o) == 0 {
		return nil
	}
	out := make(rawObject, len(o))
	for k, v := range o {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
