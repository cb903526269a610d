package dab_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dab "github.com/gamewizzzz/data-api-builder"
)

func TestUnknownEntityError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := dab.NewUnknownEntityError("Book")
		assert.Equal(t, `dab: unknown entity "Book"`, err.Error())
		assert.Equal(t, "Book", err.Entity())
	})

	t.Run("Is", func(t *testing.T) {
		err := dab.NewUnknownEntityError("Book")
		assert.True(t, errors.Is(err, dab.ErrUnknownEntity))
	})

	t.Run("IsUnknownEntity", func(t *testing.T) {
		err := dab.NewUnknownEntityError("Author")
		assert.True(t, dab.IsUnknownEntity(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, dab.IsUnknownEntity(wrapped))

		// Sentinel error
		assert.True(t, dab.IsUnknownEntity(dab.ErrUnknownEntity))

		// Non-matching error
		assert.False(t, dab.IsUnknownEntity(errors.New("other error")))
		assert.False(t, dab.IsUnknownEntity(nil))
	})
}

func TestNoSuchRelationshipError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := dab.NewNoSuchRelationshipError("Book", "Publisher")
		assert.Equal(t, `dab: no relationship from "Book" to "Publisher"`, err.Error())
		assert.Equal(t, "Book", err.Entity())
		assert.Equal(t, "Publisher", err.Target())
	})

	t.Run("Is", func(t *testing.T) {
		err := dab.NewNoSuchRelationshipError("Book", "Publisher")
		assert.True(t, errors.Is(err, dab.ErrNoSuchRelationship))
		assert.True(t, dab.IsNoSuchRelationship(err))
		assert.False(t, dab.IsNoSuchRelationship(dab.ErrUnknownEntity))
	})
}

func TestPolicyMalformedError(t *testing.T) {
	parseErr := errors.New("unexpected token")

	t.Run("Error", func(t *testing.T) {
		err := dab.NewPolicyMalformedError("Book", "reader", dab.OpRead, parseErr)
		assert.Equal(t, `dab: malformed policy for role "reader", read on "Book": unexpected token`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		err := dab.NewPolicyMalformedError("Book", "reader", dab.OpRead, parseErr)
		assert.True(t, errors.Is(err, parseErr))
		assert.True(t, errors.Is(err, dab.ErrPolicyMalformed))
		assert.True(t, dab.IsPolicyMalformed(err))
	})

	// A malformed policy must never look like a generic failure: the
	// typed check is how boundaries decide to answer access-denied.
	t.Run("NotGeneric", func(t *testing.T) {
		assert.False(t, dab.IsPolicyMalformed(errors.New("boom")))
		assert.False(t, dab.IsPolicyMalformed(nil))
	})
}

func TestUnsupportedColumnTypeError(t *testing.T) {
	err := dab.NewUnsupportedColumnTypeError("geom", "geometry")
	assert.Equal(t, `dab: column "geom" has unsupported type "geometry"`, err.Error())
	assert.True(t, dab.IsUnsupportedColumnType(err))
	assert.True(t, errors.Is(err, dab.ErrUnsupportedColumnType))
}

func TestInvalidParameterValueError(t *testing.T) {
	cause := errors.New(`cannot coerce "abc" to int32`)
	err := dab.NewInvalidParameterValueError("id", cause)
	assert.Equal(t, `dab: invalid value for "id": cannot coerce "abc" to int32`, err.Error())
	assert.True(t, dab.IsInvalidParameterValue(err))
	assert.True(t, errors.Is(err, cause))
}

func TestRenderUnsupportedError(t *testing.T) {
	err := dab.NewRenderUnsupportedError("sqlite", "stored procedures")
	assert.Equal(t, `dab: dialect "sqlite" cannot render stored procedures`, err.Error())
	assert.True(t, dab.IsRenderUnsupported(err))
	assert.True(t, errors.Is(err, dab.ErrRenderUnsupported))
}

func TestOp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "read", dab.OpRead.String())
	assert.Equal(t, "read-many", dab.OpReadMany.String())
	assert.Equal(t, "upsert", dab.OpUpsert.String())

	assert.True(t, dab.OpRead.IsRead())
	assert.True(t, dab.OpReadMany.IsRead())
	assert.False(t, dab.OpReadMany.IsMutation())
	assert.True(t, dab.OpUpsert.IsMutation())
	assert.True(t, dab.OpDelete.Is(dab.OpDelete|dab.OpUpdate))
	assert.False(t, dab.OpCreate.Is(dab.OpDelete|dab.OpUpdate))
}
