// Package sqlexec runs validated statements against the transactions store
// under a row cap and a statement timeout.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const DefaultRowCap = 50

// ExecutionError wraps the database error for a statement that the driver
// rejected or failed at runtime. These are user-facing outcomes and are never
// retried.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Result is a normalized tabular result. Every row has exactly len(Columns)
// cells; Truncated reports whether the row cap was hit.
type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Elapsed   time.Duration
}

type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs one statement inside a short-lived read-only transaction. The
// read-only transaction is defense in depth beneath the textual validator.
// At most rowCap rows are returned; one extra row is fetched and discarded to
// detect truncation.
func (e *Executor) Execute(ctx context.Context, statement string, rowCap int, timeout time.Duration) (Result, error) {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, &ExecutionError{Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, &ExecutionError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, &ExecutionError{Err: err}
	}

	collected := make([][]any, 0, rowCap)
	truncated := false
	for rows.Next() {
		if len(collected) == rowCap {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, &ExecutionError{Err: err}
		}
		for i := range values {
			values[i] = normalizeCell(values[i])
		}
		collected = append(collected, values)
	}
	if !truncated {
		if err := rows.Err(); err != nil {
			return Result{}, &ExecutionError{Err: err}
		}
	}

	return Result{
		Columns:   columns,
		Rows:      collected,
		RowCount:  len(collected),
		Truncated: truncated,
		Elapsed:   time.Since(start),
	}, nil
}

// normalizeCell maps driver values onto transport-safe scalars: byte slices
// become strings (pgx returns NUMERIC as text this way, preserving
// precision) and timestamps become ISO-8601 in UTC.
func normalizeCell(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
