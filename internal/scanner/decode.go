package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Raw is a scan as it came off the QR code, before validation.
type Raw map[string]any

// Decode accepts a scan object, {"qr_data": "<scan json>"}, or a list of
// either.
func Decode(payload []byte) ([]Raw, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, ErrMalformed
	}

	var v any
	if err := unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	default:
		return nil, fmt.Errorf("%w: expected object or list", ErrMalformed)
	}

	out := make([]Raw, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrMalformed, i)
		}
		raw, err := unwrap(obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func unwrap(obj map[string]any) (Raw, error) {
	qr, ok := obj["qr_data"]
	if !ok {
		return Raw(obj), nil
	}
	s, ok := qr.(string)
	if !ok {
		return nil, fmt.Errorf("%w: qr_data must be a string", ErrMalformed)
	}
	var inner map[string]any
	if err := unmarshal([]byte(s), &inner); err != nil || inner == nil {
		return nil, fmt.Errorf("%w: qr_data is not a JSON object", ErrMalformed)
	}
	return Raw(inner), nil
}

func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Int reads key as an integer. Numeric strings are accepted.
func (r Raw) Int(key string) (int, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func (r Raw) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String reads key the way a form would show it.
func (r Raw) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
