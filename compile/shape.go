package compile

import (
	"github.com/gamewizzzz/data-api-builder/metadata"
)

// Shape describes the result of a compiled statement: how many rows to
// expect and what each rendered column carries. The request layer uses it
// to map rows back to response fields without re-consulting metadata.
type Shape struct {
	// Entity is the exposed entity name the shape belongs to.
	Entity string

	// Many is true for list results.
	Many bool

	// Fields in rendered column order.
	Fields []FieldShape
}

// FieldShape is one output column of a shape. Relationship fields are
// JSON-valued and carry the nested shape instead of a kind.
type FieldShape struct {
	// Name is the exposed field name, which is also the column alias in
	// the rendered statement.
	Name string

	Kind     metadata.Kind
	Nullable bool

	// Related is set for relationship fields; its Many flag tells whether
	// the JSON value is an array or a single object.
	Related *Shape
}

// Field returns the shape of the named field.
func (s *Shape) Field(name string) (FieldShape, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldShape{}, false
}
