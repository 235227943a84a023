// Package value converts Go values into the representation shared by both
// sides of the bridge: nil, bool, int64, float64, string, []any and
// map[string]any.
//
// Conversion goes through a msgpack round trip, so structs are flattened
// using their msgpack (or json) tags and typed slices and maps become their
// generic forms.
package value

import (
	"bytes"
	"math"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/hostbridge/errors"
)

// Encode serializes v with struct fields named by msgpack or json tags.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			GoType(TypeName(v)).
			Detail("encode value").
			Cause(err).
			Build()
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode into generic values.
func Decode(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			Detail("decode value").
			Cause(err).
			Build()
	}
	return canonical(out), nil
}

// DecodeInto parses data into a typed destination.
func DecodeInto(data []byte, dst any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(dst); err != nil {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			GoType(TypeName(dst)).
			Detail("decode value").
			Cause(err).
			Build()
	}
	return nil
}

// Normalize returns v in the shared representation.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	}
	data, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// NormalizeArgs normalizes an argument list element-wise.
func NormalizeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		n, err := Normalize(a)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// canonical folds the integer widths msgpack produces into int64.
func canonical(v any) any {
	switch t := v.(type) {
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case map[string]any:
		for k, e := range t {
			t[k] = canonical(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = canonical(e)
		}
		return t
	default:
		return v
	}
}

// ToFloat converts a numeric shared value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ToInt converts a numeric shared value to int when it has no fraction.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	case float32:
		f := float64(n)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
	}
	return 0, false
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
