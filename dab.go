// Package dab exposes relational database objects as data-API resources
// driven entirely by declarative metadata. The root package holds the
// vocabulary shared by every component: the operation kinds a caller may
// request and the error taxonomy the compiler reports.
package dab

import "fmt"

// Op is the operation kind of a data-access request.
type Op uint

// Operation kinds.
const (
	// OpRead reads a single row by key.
	OpRead Op = 1 << iota
	// OpReadMany reads a page of rows with keyset pagination.
	OpReadMany
	// OpCreate inserts a new row.
	OpCreate
	// OpUpdate updates an existing row.
	OpUpdate
	// OpUpsert updates an existing row or inserts it when absent.
	OpUpsert
	// OpDelete deletes an existing row.
	OpDelete
)

var opNames = map[Op]string{
	OpRead:     "read",
	OpReadMany: "read-many",
	OpCreate:   "create",
	OpUpdate:   "update",
	OpUpsert:   "upsert",
	OpDelete:   "delete",
}

// ParseOp resolves an operation by its lower-case name, the inverse of
// String. The boolean is false for unknown names.
func ParseOp(name string) (Op, bool) {
	for op, s := range opNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

// Is reports whether o is contained in the given bit mask.
func (o Op) Is(mask Op) bool { return o&mask != 0 }

// IsRead reports whether the operation reads rather than mutates.
func (o Op) IsRead() bool { return o.Is(OpRead | OpReadMany) }

// IsMutation reports whether the operation writes to the database.
func (o Op) IsMutation() bool { return o.Is(OpCreate | OpUpdate | OpUpsert | OpDelete) }

// String returns the lower-case name of the operation.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", o)
}
