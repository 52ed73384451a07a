package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/trsync/errors"
)

// Record is a JSON object that preserves document key order. Nested objects
// decode as *Record, arrays as []any, and numbers as json.Number so that
// numeric literals survive a decode/encode round trip unchanged.
//
// Order matters here: the tabular column policy is first-seen key order
// across the batch, which is only meaningful if each record remembers the
// order its keys arrived in.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Get returns the value stored under key
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set stores a value under key, appending the key to the order if new
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Delete removes a key and its value, preserving the order of the rest
func (r *Record) Delete(key string) {
	if _, exists := r.values[key]; !exists {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the record's keys in document order
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys
func (r *Record) Len() int {
	return len(r.keys)
}

// UnmarshalJSON decodes a JSON object preserving key order
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return errors.WrapInvalid(err, "Record", "UnmarshalJSON", "read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.WrapInvalid(
			fmt.Errorf("expected object, got %v", tok),
			"Record", "UnmarshalJSON", "validate shape")
	}

	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// decodeObject reads object members from dec until the closing brace.
// The opening brace has already been consumed.
func decodeObject(dec *json.Decoder) (*Record, error) {
	record := NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.WrapInvalid(err, "Record", "UnmarshalJSON", "read key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("expected string key, got %v", keyTok),
				"Record", "UnmarshalJSON", "read key")
		}

		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		record.Set(key, value)
	}

	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return nil, errors.WrapInvalid(err, "Record", "UnmarshalJSON", "read closing token")
	}
	return record, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.WrapInvalid(err, "Record", "UnmarshalJSON", "read value")
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		// Scalar: string, json.Number, bool, or nil
		return tok, nil
	}

	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		var items []any
		for dec.More() {
			item, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, errors.WrapInvalid(err, "Record", "UnmarshalJSON", "read closing token")
		}
		return items, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unexpected delimiter %v", delim),
			"Record", "UnmarshalJSON", "read value")
	}
}

// MarshalJSON encodes the record with its keys in document order
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Record", "MarshalJSON", "encode key")
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valueJSON, err := marshalValue(r.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemJSON, err := marshalValue(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemJSON)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		data, err := marshalNoEscape(v)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Record", "MarshalJSON", "encode value")
		}
		return data, nil
	}
}

// marshalNoEscape marshals without HTML escaping so non-ASCII and HTML
// characters pass through to output files unchanged.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
