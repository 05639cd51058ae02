package serialkey

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// Encode canonicalizes raw into a Key.
//
// Scalars pass through (all numeric kinds become Number), slices and arrays
// keep every position with nil entries normalized to nil, maps and structs
// become a Map with nil-valued entries omitted. Byte slices are hex encoded,
// and any other value implementing fmt.Stringer or error is coerced to its
// string form. Values that cannot be coerced fail with a *KeyEncodingError.
func Encode(raw any) (Key, error) {
	if raw == nil {
		return nil, nil
	}
	return encodeValue(reflect.ValueOf(raw))
}

// MustEncode is Encode for values known to be encodable
func MustEncode(raw any) Key {
	k, err := Encode(raw)
	if err != nil {
		panic(err)
	}
	return k
}

func encodeValue(rv reflect.Value) (Key, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	// map and slice elements of type any arrive as interfaces, possibly
	// holding a typed nil pointer
	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}

	if rv.CanInterface() {
		if k, ok, err := encodeKnown(rv.Interface()); ok || err != nil {
			return k, err
		}
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return encodeValue(rv.Elem())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float())
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(rv.Bytes()), nil
		}
		return encodeList(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b), nil
		}
		return encodeList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeMap(rv)
	case reflect.Struct:
		out := make(Map)
		if err := encodeStruct(rv, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, &KeyEncodingError{Value: safeInterface(rv), Reason: fmt.Sprintf("unsupported kind %s", rv.Kind())}
	}
}

// encodeKnown handles types with a dedicated canonical form. The boolean
// result reports whether v was handled.
func encodeKnown(v any) (Key, bool, error) {
	switch val := v.(type) {
	case Number:
		return val, true, nil
	case json.Number:
		return Number(val.String()), true, nil
	case *big.Int:
		return Number(val.String()), true, nil
	case big.Int:
		return Number(val.String()), true, nil
	case []byte:
		if val == nil {
			return nil, true, nil
		}
		return hexutil.Encode(val), true, nil
	case error:
		s, err := coerce(v, val.Error)
		return s, true, err
	case fmt.Stringer:
		s, err := coerce(v, val.String)
		return s, true, err
	}
	return nil, false, nil
}

// coerce calls a string conversion and turns a panic into a KeyEncodingError
func coerce(v any, fn func() string) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KeyEncodingError{Value: v, Reason: fmt.Sprintf("string conversion panicked: %v", r)}
		}
	}()
	return fn(), nil
}

func encodeFloat(f float64) (Key, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &KeyEncodingError{Value: f, Reason: "non-finite number"}
	}
	// plain decimal so that 1e21 and the equal integer share a key
	return Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func encodeList(rv reflect.Value) (Key, error) {
	out := make(List, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		el, err := encodeValue(rv.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = el
	}
	return out, nil
}

func encodeMap(rv reflect.Value) (Key, error) {
	out := make(Map, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		name, err := mapKeyName(iter.Key())
		if err != nil {
			return nil, err
		}
		el, err := encodeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		if el == nil {
			continue
		}
		out[name] = el
	}
	return out, nil
}

func mapKeyName(rv reflect.Value) (string, error) {
	if rv.Kind() == reflect.Interface && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	k, err := encodeValue(rv)
	if err != nil {
		return "", err
	}
	switch name := k.(type) {
	case string:
		return name, nil
	case Number:
		return string(name), nil
	case bool:
		return strconv.FormatBool(name), nil
	}
	return "", &KeyEncodingError{Value: safeInterface(rv), Reason: "map key is not a scalar"}
}

func encodeStruct(rv reflect.Value, out Map) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			fv := rv.Field(i)
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct && !implementsCoercion(fv.Type()) {
				if err := encodeStruct(fv, out); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}

		el, err := encodeValue(rv.Field(i))
		if err != nil {
			return err
		}
		if el == nil {
			continue
		}
		out[name] = el
	}
	return nil
}

func implementsCoercion(t reflect.Type) bool {
	return t.Implements(stringerType) || t.Implements(errorType) ||
		reflect.PointerTo(t).Implements(stringerType)
}

func safeInterface(rv reflect.Value) any {
	if rv.IsValid() && rv.CanInterface() {
		return rv.Interface()
	}
	return rv.Type().String()
}
