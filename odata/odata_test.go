package odata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamewizzzz/data-api-builder/odata"
)

func TestParseComparison(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		field string
		op    odata.CompareOp
		value any
	}{
		{"EQNumber", "@item.id eq 5", "id", odata.OpEQ, float64(5)},
		{"NEString", "@item.state ne 'draft'", "state", odata.OpNE, "draft"},
		{"GTNegative", "@item.balance gt -10.5", "balance", odata.OpGT, -10.5},
		{"GEBool", "@item.public ge true", "public", odata.OpGE, true},
		{"LTNull", "@item.deleted_at lt null", "deleted_at", odata.OpLT, nil},
		{"LENumber", "@item.year le 1990", "year", odata.OpLE, float64(1990)},
		{"QuoteEscape", "@item.title eq 'it''s'", "title", odata.OpEQ, "it's"},
		{"BareField", "title eq 'Go'", "title", odata.OpEQ, "Go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := odata.Parse(tt.input)
			require.NoError(t, err)
			require.Equal(t, odata.NodeComparison, node.Kind)
			assert.Equal(t, tt.field, node.Field)
			assert.Equal(t, tt.op, node.Op)
			assert.Equal(t, tt.value, node.Value.Value())
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	t.Parallel()
	// and binds tighter than or.
	node, err := odata.Parse("@item.a eq 1 or @item.b eq 2 and @item.c eq 3")
	require.NoError(t, err)
	require.Equal(t, odata.NodeOr, node.Kind)
	assert.Equal(t, odata.NodeComparison, node.Left.Kind)
	require.Equal(t, odata.NodeAnd, node.Right.Kind)
	assert.Equal(t, "b", node.Right.Left.Field)
	assert.Equal(t, "c", node.Right.Right.Field)
}

func TestParseGrouping(t *testing.T) {
	t.Parallel()
	node, err := odata.Parse("(@item.a eq 1 or @item.b eq 2) and @item.c eq 3")
	require.NoError(t, err)
	require.Equal(t, odata.NodeAnd, node.Kind)
	assert.Equal(t, odata.NodeOr, node.Left.Kind)
	assert.Equal(t, "c", node.Right.Field)
}

func TestParseNot(t *testing.T) {
	t.Parallel()
	node, err := odata.Parse("not @item.hidden eq true")
	require.NoError(t, err)
	require.Equal(t, odata.NodeNot, node.Kind)
	assert.Equal(t, odata.NodeComparison, node.Left.Kind)

	node, err = odata.Parse("not (@item.a eq 1 and @item.b eq 2)")
	require.NoError(t, err)
	require.Equal(t, odata.NodeNot, node.Kind)
	assert.Equal(t, odata.NodeAnd, node.Left.Kind)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"   ",
		"@item.id",
		"@item.id eq",
		"@item.id equals 5",
		"@item.id eq 5 and",
		"(@item.id eq 5",
		"@item.id eq 'unterminated",
		"5 eq @item.id",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := odata.Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestNodeString(t *testing.T) {
	t.Parallel()
	node, err := odata.Parse("not (@item.a eq 1 or @item.t eq 'x''y') and @item.b ne null")
	require.NoError(t, err)
	assert.Equal(t, "(not (@item.a eq 1 or @item.t eq 'x''y') and @item.b ne null)", node.String())
}
