// Package paginate implements keyset pagination over composite primary
// keys: the continuation token format and the resumption predicate.
//
// Pagination is keyset, not offset: a token carries the primary-key tuple
// of the last row of the previous page, and the next page is "every row
// whose key tuple is lexicographically greater." That keeps pages stable
// under concurrent writes.
package paginate

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
)

// tokenVersion is bumped when the token encoding changes shape. Tokens
// are opaque to clients, so only this package ever reads the field.
const tokenVersion = 1

// tokenParam is the request parameter name tokens arrive under, used in
// invalid-parameter errors.
const tokenParam = "after"

type token struct {
	Version int   `msgpack:"v"`
	Keys    []any `msgpack:"k"`
}

// EncodeToken serializes an ordered primary-key tuple into an opaque
// continuation token.
func EncodeToken(values []any) (string, error) {
	raw, err := msgpack.Marshal(token{Version: tokenVersion, Keys: values})
	if err != nil {
		return "", fmt.Errorf("paginate: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken deserializes a continuation token and coerces each key
// value to its column type, so tokens round-trip through the same
// coercion used when binding parameters. Any malformed or mismatched
// token fails as an invalid parameter value.
func DecodeToken(s string, keys []*metadata.Column) ([]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, dab.NewInvalidParameterValueError(tokenParam, err)
	}
	var t token
	if err := msgpack.Unmarshal(raw, &t); err != nil {
		return nil, dab.NewInvalidParameterValueError(tokenParam, err)
	}
	if t.Version != tokenVersion {
		return nil, dab.NewInvalidParameterValueError(tokenParam,
			fmt.Errorf("unsupported token version %d", t.Version))
	}
	if len(t.Keys) != len(keys) {
		return nil, dab.NewInvalidParameterValueError(tokenParam,
			fmt.Errorf("token carries %d key values, primary key has %d columns", len(t.Keys), len(keys)))
	}
	values := make([]any, len(keys))
	for i, col := range keys {
		v, err := metadata.CoerceColumn(col, normalize(t.Keys[i]))
		if err != nil {
			return nil, dab.NewInvalidParameterValueError(tokenParam, err)
		}
		values[i] = v
	}
	return values, nil
}

// TokenFromRow encodes a token from the row's primary-key values, keyed
// by exposed field name.
func TokenFromRow(ent *metadata.Entity, row map[string]any) (string, error) {
	keys := ent.Table.PrimaryKeyColumns()
	values := make([]any, len(keys))
	for i, col := range keys {
		name := col.Name
		if exposed, ok := ent.ExposedName(col.Name); ok {
			name = exposed
		}
		v, ok := row[name]
		if !ok {
			return "", fmt.Errorf("paginate: row is missing key column %q", name)
		}
		coerced, err := metadata.CoerceColumn(col, normalize(v))
		if err != nil {
			return "", fmt.Errorf("paginate: %w", err)
		}
		values[i] = coerced
	}
	return EncodeToken(values)
}

// Keyset builds the resumption predicate for a decoded token: the
// disjunction over i of (k1 = v1 AND ... AND k(i-1) = v(i-1) AND ki > vi).
// The expanded form is used because a row-value comparison over the whole
// tuple does not render identically on every dialect. Values must already
// be coerced; each occurrence registers its own parameter so rendering
// stays strictly ordered.
func Keyset(alias string, keys []*metadata.Column, values []any, params *sql.Params) (*sql.P, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("paginate: keyset requires at least one key column")
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("paginate: %d key values for %d key columns", len(values), len(keys))
	}
	terms := make([]*sql.P, 0, len(keys))
	for i, col := range keys {
		conj := make([]*sql.P, 0, i+1)
		for j := 0; j < i; j++ {
			conj = append(conj, sql.EQ(sql.C(alias, keys[j].Name), params.Add(values[j])))
		}
		conj = append(conj, sql.GT(sql.C(alias, col.Name), params.Add(values[i])))
		terms = append(terms, sql.And(conj...))
	}
	return sql.Or(terms...), nil
}

// normalize folds the integer and float widths a decoder may produce into
// the widths the column coercers accept.
func normalize(v any) any {
	switch v := v.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}
