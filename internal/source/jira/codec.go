package jira

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode unmarshals body into T. When property is non-empty, only the
// value at that dotted path (e.g. "fields.subtasks") is decoded.
func Decode[T any](body []byte, property string) (T, error) {
	var out T

	raw := json.RawMessage(body)
	if property != "" {
		for _, name := range strings.Split(property, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(raw, &obj); err != nil {
				return out, fmt.Errorf("%w: reading %q: %v", ErrMalformedResponse, property, err)
			}
			next, ok := obj[name]
			if !ok {
				return out, fmt.Errorf("%w: property %q missing", ErrMalformedResponse, property)
			}
			raw = next
		}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: decoding %T: %v", ErrMalformedResponse, out, err)
	}
	return out, nil
}

// Encode marshals v into a request body.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}
	return data, nil
}
