package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dab "github.com/gamewizzzz/data-api-builder"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typeName string
		kind     Kind
		ok       bool
	}{
		{"int", KindInt32, true},
		{"INTEGER", KindInt32, true},
		{"bigint", KindInt64, true},
		{"smallint", KindInt16, true},
		{"varchar", KindString, true},
		{"NVARCHAR", KindString, true},
		{"uniqueidentifier", KindString, true},
		{"bit", KindBool, true},
		{"real", KindFloat32, true},
		{"double precision", KindFloat64, true},
		{"numeric", KindDecimal, true},
		{"timestamptz", KindDateTime, true},
		{"time", KindTimeOfDay, true},
		{"varbinary", KindBytes, true},
		{"geometry", KindInvalid, false},
		{"", KindInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			k, ok := KindOf(tt.typeName)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.kind, k)
			}
		})
	}
}

func TestKindCoerce(t *testing.T) {
	t.Parallel()

	t.Run("Int", func(t *testing.T) {
		v, err := KindInt32.Coerce(float64(5))
		require.NoError(t, err)
		assert.Equal(t, int64(5), v)

		v, err = KindInt32.Coerce("42")
		require.NoError(t, err)
		assert.Equal(t, int64(42), v)

		_, err = KindInt32.Coerce(5.5)
		assert.Error(t, err)

		_, err = KindInt16.Coerce(1 << 20)
		assert.Error(t, err, "overflow must be rejected")
	})

	t.Run("String", func(t *testing.T) {
		v, err := KindString.Coerce("hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", v)

		_, err = KindString.Coerce(5)
		assert.Error(t, err)
	})

	t.Run("Bool", func(t *testing.T) {
		v, err := KindBool.Coerce("true")
		require.NoError(t, err)
		assert.Equal(t, true, v)
	})

	t.Run("Decimal", func(t *testing.T) {
		// Decimals bind as strings so no precision is lost in transit.
		v, err := KindDecimal.Coerce("10.250")
		require.NoError(t, err)
		assert.Equal(t, "10.250", v)

		v, err = KindDecimal.Coerce(3.5)
		require.NoError(t, err)
		assert.Equal(t, "3.5", v)

		_, err = KindDecimal.Coerce("not-a-number")
		assert.Error(t, err)
	})

	t.Run("DateTime", func(t *testing.T) {
		v, err := KindDateTime.Coerce("2024-06-01T10:30:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), v)

		_, err = KindDateTime.Coerce("yesterday")
		assert.Error(t, err)
	})

	t.Run("Nil", func(t *testing.T) {
		v, err := KindInt64.Coerce(nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestCoerceColumn(t *testing.T) {
	t.Parallel()

	id := &Column{Name: "id", Kind: KindInt32}
	title := &Column{Name: "title", Kind: KindString, Nullable: true}

	v, err := CoerceColumn(id, float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = CoerceColumn(id, "abc")
	assert.True(t, dab.IsInvalidParameterValue(err))

	// Nil into a non-nullable column is a caller error.
	_, err = CoerceColumn(id, nil)
	assert.True(t, dab.IsInvalidParameterValue(err))

	v, err = CoerceColumn(title, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}
