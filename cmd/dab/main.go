// Package main is the dab command: it loads a declarative entity
// configuration, compiles data-API requests into dialect-specific SQL,
// and optionally executes them against a live database.
//
// Usage:
//
//	dab validate --config entities.yaml
//	dab query --entity Book --op read-many --filter "@item.year ge 1990"
//	dab mutate --entity Book --op create --set title=Go --set authorId=7
//	dab watch --config entities.yaml
//
// Commands that execute need --dsn (or DAB_DSN); the rest work offline.
package main

import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	Execute()
}
