package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gamewizzzz/data-api-builder/dialect"
)

// Statement is rendered statement text together with its ordered bind
// values, ready for execution.
type Statement struct {
	Text string
	Args []any
}

// UpsertResult reports which leg of an upsert plan took effect. When the
// dialect supports returning the affected row, Columns and Values carry
// it; otherwise both are nil and the caller reads the row back.
type UpsertResult struct {
	Inserted bool
	Columns  []string
	Values   []any
}

// txBeginner is implemented by drivers that can start a transaction with
// explicit options.
type txBeginner interface {
	BeginTx(context.Context, *TxOptions) (dialect.Tx, error)
}

// ExecUpsert executes an upsert plan: the update statement first, and the
// insert statement only when the update touched no row. Both legs run in
// one serializable transaction so a concurrent writer cannot slip a row
// in between the two.
//
// returning tells ExecUpsert whether the statements carry a returning
// clause; it must match Renderer.ReturningSupported for the dialect the
// plan was rendered for.
func ExecUpsert(ctx context.Context, drv dialect.Driver, returning bool, update, insert Statement) (res *UpsertResult, rerr error) {
	var (
		tx  dialect.Tx
		err error
	)
	if b, ok := drv.(txBeginner); ok {
		tx, err = b.BeginTx(ctx, &TxOptions{Isolation: sql.LevelSerializable})
	} else {
		tx, err = drv.Tx(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: upsert: begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			rerr = errors.Join(rerr, tx.Rollback())
		}
	}()
	if returning {
		res, err = upsertReturning(ctx, tx, update, insert)
	} else {
		res, err = upsertByCount(ctx, tx, update, insert)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dialect/sql: upsert: commit: %w", err)
	}
	return res, nil
}

func upsertReturning(ctx context.Context, tx dialect.Tx, update, insert Statement) (*UpsertResult, error) {
	res := &UpsertResult{}
	var rows Rows
	if err := tx.Query(ctx, update.Text, update.Args, &rows); err != nil {
		return nil, err
	}
	cols, vals, ok, err := scanOne(&rows)
	if err != nil {
		return nil, err
	}
	if ok {
		res.Columns, res.Values = cols, vals
		return res, nil
	}
	if err := tx.Query(ctx, insert.Text, insert.Args, &rows); err != nil {
		return nil, err
	}
	cols, vals, ok, err = scanOne(&rows)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("dialect/sql: upsert: insert returned no row")
	}
	res.Inserted = true
	res.Columns, res.Values = cols, vals
	return res, nil
}

// upsertByCount decides between the two legs by RowsAffected. The count
// must reflect matched rows, not changed rows; MySQL connections need
// clientFoundRows in the DSN for that.
func upsertByCount(ctx context.Context, tx dialect.Tx, update, insert Statement) (*UpsertResult, error) {
	res := &UpsertResult{}
	var updated sql.Result
	if err := tx.Exec(ctx, update.Text, update.Args, &updated); err != nil {
		return nil, err
	}
	n, err := updated.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return res, nil
	}
	if err := tx.Exec(ctx, insert.Text, insert.Args, nil); err != nil {
		return nil, err
	}
	res.Inserted = true
	return res, nil
}

// scanOne consumes a result set, scanning the single expected row.
func scanOne(rows *Rows) (cols []string, vals []any, ok bool, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	if !rows.Next() {
		return nil, nil, false, rows.Err()
	}
	cols, err = rows.Columns()
	if err != nil {
		return nil, nil, false, err
	}
	vals = make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, false, err
	}
	return cols, vals, true, rows.Err()
}
