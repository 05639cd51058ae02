package serialkey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key is a canonical, order-independent representation of structured
// parameters. The concrete value is always one of:
//
//	nil, bool, string, Number, List, Map
//
// Two keys are compared only through their serialized form (see Marshal).
type Key = any

// Number is the canonical decimal text of any integer or float value.
// Keeping numbers as text lets 64-bit and big integers survive serialization
// without float rounding.
type Number string

// List is an ordered sequence of keys. Positions carry meaning, so nil
// elements are kept as nil.
type List []Key

// Map is a string-keyed mapping. Nil values are never stored in a Map.
type Map map[string]Key

// MarshalJSON writes the number as a bare JSON number literal
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// Marshal serializes a key to its canonical string form.
// Map keys are written in ascending order.
func Marshal(k Key) (string, error) {
	var buf bytes.Buffer
	if err := writeKey(&buf, k); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustMarshal is Marshal for keys produced by Encode, which always serialize
func MustMarshal(k Key) string {
	s, err := Marshal(k)
	if err != nil {
		panic(err)
	}
	return s
}

// String encodes raw and serializes the result in one step
func String(raw any) (string, error) {
	k, err := Encode(raw)
	if err != nil {
		return "", err
	}
	return Marshal(k)
}

func writeKey(buf *bytes.Buffer, k Key) error {
	switch v := k.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Number:
		b, _ := v.MarshalJSON()
		buf.Write(b)
	case List:
		buf.WriteByte('[')
		for i, el := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Map:
		keys := make([]string, 0, len(v))
		for name := range v {
			keys = append(keys, name)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, name := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(name)
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := writeKey(buf, v[name]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &KeyEncodingError{Value: k, Reason: fmt.Sprintf("%T is not a canonical key type", k)}
	}
	return nil
}

// Parse turns a serialized key back into its structured form
func Parse(s string) (Key, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return fromJSON(raw), nil
}

// fromJSON converts decoded JSON into canonical key types
func fromJSON(v any) Key {
	switch val := v.(type) {
	case json.Number:
		return Number(val.String())
	case []any:
		out := make(List, len(val))
		for i, el := range val {
			out[i] = fromJSON(el)
		}
		return out
	case map[string]any:
		out := make(Map, len(val))
		for name, el := range val {
			if el == nil {
				continue
			}
			out[name] = fromJSON(el)
		}
		return out
	default:
		return val
	}
}
