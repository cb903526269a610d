package metadata

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	dab "github.com/gamewizzzz/data-api-builder"
)

// Kind is the closed set of value kinds a column may carry. Every kind owns
// its own coercion strategy, looked up by tag rather than by the runtime
// type name of the value.
type Kind uint8

// Supported value kinds.
const (
	KindInvalid Kind = iota
	KindString
	KindBytes
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal
	KindDateTime
	KindTimeOfDay
	endKinds
)

var kindNames = [endKinds]string{
	KindInvalid:   "invalid",
	KindString:    "string",
	KindBytes:     "bytes",
	KindBool:      "bool",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindDecimal:   "decimal",
	KindDateTime:  "datetime",
	KindTimeOfDay: "time",
}

// String returns the kind name.
func (k Kind) String() string {
	if k < endKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether the kind is one of the supported kinds.
func (k Kind) Valid() bool { return k > KindInvalid && k < endKinds }

// typeKinds maps declared database type names to kinds. Synonyms across the
// supported backends collapse onto the same tag.
var typeKinds = map[string]Kind{
	"string":           KindString,
	"text":             KindString,
	"varchar":          KindString,
	"nvarchar":         KindString,
	"char":             KindString,
	"nchar":            KindString,
	"uuid":             KindString,
	"uniqueidentifier": KindString,
	"bytes":            KindBytes,
	"bytea":            KindBytes,
	"blob":             KindBytes,
	"binary":           KindBytes,
	"varbinary":        KindBytes,
	"bool":             KindBool,
	"boolean":          KindBool,
	"bit":              KindBool,
	"int16":            KindInt16,
	"smallint":         KindInt16,
	"int32":            KindInt32,
	"int":              KindInt32,
	"integer":          KindInt32,
	"int64":            KindInt64,
	"bigint":           KindInt64,
	"float32":          KindFloat32,
	"real":             KindFloat32,
	"float64":          KindFloat64,
	"float":            KindFloat64,
	"double":           KindFloat64,
	"double precision": KindFloat64,
	"decimal":          KindDecimal,
	"numeric":          KindDecimal,
	"money":            KindDecimal,
	"datetime":         KindDateTime,
	"datetime2":        KindDateTime,
	"timestamp":        KindDateTime,
	"timestamptz":      KindDateTime,
	"date":             KindDateTime,
	"time":             KindTimeOfDay,
}

// KindOf resolves a declared database type name to its kind. The second
// return value is false for types outside the supported set.
func KindOf(typeName string) (Kind, bool) {
	k, ok := typeKinds[strings.ToLower(strings.TrimSpace(typeName))]
	return k, ok
}

// coerceFunc converts an incoming value to the bind value for its kind.
type coerceFunc func(v any) (any, error)

// coercers is the kind-indexed coercion table. Entries accept the loose
// types produced by JSON decoding (string, float64, bool, json-ish numbers)
// in addition to the exact Go types, and return a value suitable for
// driver-level parameter binding.
var coercers = [endKinds]coerceFunc{
	KindString:    coerceString,
	KindBytes:     coerceBytes,
	KindBool:      coerceBool,
	KindInt16:     coerceIntKind(16),
	KindInt32:     coerceIntKind(32),
	KindInt64:     coerceIntKind(64),
	KindFloat32:   coerceFloatKind(32),
	KindFloat64:   coerceFloatKind(64),
	KindDecimal:   coerceDecimal,
	KindDateTime:  coerceDateTime,
	KindTimeOfDay: coerceTimeOfDay,
}

// Coerce converts v to the bind value for kind k. A nil value passes
// through unchanged (nullability is checked by the caller against the
// column definition).
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !k.Valid() {
		return nil, fmt.Errorf("cannot coerce %T to %s", v, k)
	}
	return coercers[k](v)
}

func coerceString(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to string", v)
	}
}

func coerceBytes(v any) (any, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		// Byte values cross the wire base64-encoded.
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bytes: %w", v, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to bytes", v)
	}
}

func coerceBool(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bool", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to bool", v)
	}
}

func coerceIntKind(bits int) coerceFunc {
	return func(v any) (any, error) {
		var n int64
		switch v := v.(type) {
		case int:
			n = int64(v)
		case int16:
			n = int64(v)
		case int32:
			n = int64(v)
		case int64:
			n = v
		case float64:
			// JSON numbers decode as float64; reject fractional values.
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("cannot coerce %v to int%d", v, bits)
			}
			n = int64(v)
		case string:
			p, err := strconv.ParseInt(v, 10, bits)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to int%d", v, bits)
			}
			n = p
		default:
			return nil, fmt.Errorf("cannot coerce %T to int%d", v, bits)
		}
		if bits < 64 {
			limit := int64(1) << (bits - 1)
			if n < -limit || n >= limit {
				return nil, fmt.Errorf("value %d overflows int%d", n, bits)
			}
		}
		return n, nil
	}
}

func coerceFloatKind(bits int) coerceFunc {
	return func(v any) (any, error) {
		switch v := v.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, bits)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to float%d", v, bits)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to float%d", v, bits)
		}
	}
}

// coerceDecimal binds decimals as their canonical string form so no
// precision is lost in transit; the backend parses it server-side.
func coerceDecimal(v any) (any, error) {
	switch v := v.(type) {
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("cannot coerce %q to decimal", v)
		}
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to decimal", v)
	}
}

func coerceDateTime(v any) (any, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot coerce %q to datetime", v)
	default:
		return nil, fmt.Errorf("cannot coerce %T to datetime", v)
	}
}

func coerceTimeOfDay(v any) (any, error) {
	switch v := v.(type) {
	case time.Time:
		return v.Format("15:04:05.999999"), nil
	case string:
		for _, layout := range []string{"15:04:05.999999", "15:04:05", "15:04"} {
			if _, err := time.Parse(layout, v); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("cannot coerce %q to time", v)
	default:
		return nil, fmt.Errorf("cannot coerce %T to time", v)
	}
}

// CoerceColumn converts v to the bind value for the given column, wrapping
// failures in the caller-facing invalid-parameter error.
func CoerceColumn(c *Column, v any) (any, error) {
	if v == nil {
		if !c.Nullable {
			return nil, dab.NewInvalidParameterValueError(c.Name, fmt.Errorf("column is not nullable"))
		}
		return nil, nil
	}
	out, err := c.Kind.Coerce(v)
	if err != nil {
		return nil, dab.NewInvalidParameterValueError(c.Name, err)
	}
	return out, nil
}
