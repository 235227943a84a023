package nativemodule

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/value"
)

func argName(i int) string {
	return "arg" + strconv.Itoa(i)
}

// Check validates args against the parameter list.
func (s *Signature) Check(module, method string, args []any) error {
	if len(args) != len(s.Params) {
		return errors.ArityMismatch([]string{module, method}, len(s.Params), len(args))
	}
	for i, p := range s.Params {
		if err := checkValue(p, args[i], []string{module, method, argName(i)}); err != nil {
			return err
		}
	}
	return nil
}

// String renders the signature in WIT function syntax.
func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(argName(i))
		b.WriteString(": ")
		b.WriteString(typeString(p))
	}
	b.WriteByte(')')
	if s.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(typeString(s.Result))
	}
	return b.String()
}

func checkValue(t wit.Type, v any, path []string) error {
	switch t := t.(type) {
	case wit.Bool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case wit.U8:
		return checkInt(v, 0, math.MaxUint8, t, path)
	case wit.U16:
		return checkInt(v, 0, math.MaxUint16, t, path)
	case wit.U32:
		return checkInt(v, 0, math.MaxUint32, t, path)
	case wit.U64:
		return checkInt(v, 0, math.MaxInt64, t, path)
	case wit.S8:
		return checkInt(v, math.MinInt8, math.MaxInt8, t, path)
	case wit.S16:
		return checkInt(v, math.MinInt16, math.MaxInt16, t, path)
	case wit.S32:
		return checkInt(v, math.MinInt32, math.MaxInt32, t, path)
	case wit.S64:
		return checkInt(v, math.MinInt64, math.MaxInt64, t, path)
	case wit.F32, wit.F64:
		if _, ok := value.ToFloat(v); ok {
			return nil
		}
	case wit.Char:
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) == 1 {
			return nil
		}
	case wit.String:
		if _, ok := v.(string); ok {
			return nil
		}
	case *wit.TypeDef:
		return checkTypeDef(t, v, path)
	default:
		return errors.New(errors.PhaseDispatch, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type: %T", t).
			Build()
	}
	return errors.TypeMismatch(errors.PhaseDispatch, path, value.TypeName(v), typeString(t))
}

func checkInt(v any, low, high int64, t wit.Type, path []string) error {
	f, ok := value.ToFloat(v)
	if ok && f == math.Trunc(f) && f >= float64(low) && f <= float64(high) {
		return nil
	}
	return errors.TypeMismatch(errors.PhaseDispatch, path, value.TypeName(v), typeString(t))
}

func checkTypeDef(td *wit.TypeDef, v any, path []string) error {
	mismatch := errors.TypeMismatch(errors.PhaseDispatch, path, value.TypeName(v), typeString(td))

	switch kind := td.Kind.(type) {
	case *wit.Option:
		if v == nil {
			return nil
		}
		return checkValue(kind.Type, v, path)
	case *wit.List:
		items, ok := v.([]any)
		if !ok {
			return mismatch
		}
		for i, item := range items {
			if err := checkValue(kind.Type, item, append(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	case *wit.Tuple:
		items, ok := v.([]any)
		if !ok || len(items) != len(kind.Types) {
			return mismatch
		}
		for i, item := range items {
			if err := checkValue(kind.Types[i], item, append(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	case *wit.Record:
		fields, ok := v.(map[string]any)
		if !ok {
			return mismatch
		}
		for _, f := range kind.Fields {
			if err := checkValue(f.Type, fields[f.Name], append(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case *wit.Enum:
		s, ok := v.(string)
		if !ok || !lo.ContainsBy(kind.Cases, func(c wit.EnumCase) bool { return c.Name == s }) {
			return mismatch
		}
		return nil
	case *wit.Flags:
		names, ok := v.([]any)
		if !ok {
			return mismatch
		}
		for _, n := range names {
			s, ok := n.(string)
			if !ok || !lo.ContainsBy(kind.Flags, func(f wit.Flag) bool { return f.Name == s }) {
				return mismatch
			}
		}
		return nil
	case wit.Type:
		return checkValue(kind, v, path)
	default:
		return errors.New(errors.PhaseDispatch, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported TypeDef kind: %T", kind).
			Build()
	}
}

func typeString(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U16:
		return "u16"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.S8:
		return "s8"
	case wit.S16:
		return "s16"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.Option:
			return "option<" + typeString(kind.Type) + ">"
		case *wit.List:
			return "list<" + typeString(kind.Type) + ">"
		case *wit.Tuple:
			return "tuple<" + strings.Join(lo.Map(kind.Types, func(e wit.Type, _ int) string {
				return typeString(e)
			}), ", ") + ">"
		case *wit.Record:
			return "record"
		case *wit.Enum:
			return "enum"
		case *wit.Flags:
			return "flags"
		case wit.Type:
			return typeString(kind)
		}
	}
	return "unknown"
}
