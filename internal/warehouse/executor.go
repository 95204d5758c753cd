package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Result holds at most the executor's row limit. Truncated is set when the
// statement produced more rows than were read.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
	Duration  time.Duration
}

// QueryError is returned for every failure to run a statement, including
// errors reported by the warehouse itself.
type QueryError struct {
	SQL     string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	return e.Message
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}

// SQLExecutor runs statements on a borrowed *sql.DB. It never closes the
// handle; each Execute takes one connection and releases it before returning.
type SQLExecutor struct {
	db       *sql.DB
	rowLimit int
}

func NewExecutor(conn Connection, rowLimit int) *SQLExecutor {
	return &SQLExecutor{db: conn.DB(), rowLimit: rowLimit}
}

func (e *SQLExecutor) Execute(ctx context.Context, sqlText string) (Result, error) {
	statement := StripTrailingSemicolons(sqlText)
	if statement == "" {
		return Result{}, &QueryError{SQL: sqlText, Message: "sql is required"}
	}
	if e.db == nil {
		return Result{}, &QueryError{SQL: sqlText, Message: "warehouse connection is not available"}
	}

	start := time.Now()
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return Result{}, queryError(sqlText, "acquire warehouse connection", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, queryError(sqlText, "execute query", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, queryError(sqlText, "query columns", err)
	}

	resultRows := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if e.rowLimit > 0 && len(resultRows) == e.rowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, queryError(sqlText, "scan row", err)
		}
		resultRows = append(resultRows, rowMap(columns, values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, queryError(sqlText, "iterate rows", err)
	}

	return Result{Columns: columns, Rows: resultRows, Truncated: truncated, Duration: time.Since(start)}, nil
}

// IsReadOnly reports whether the statement starts with SELECT or WITH.
func IsReadOnly(sqlText string) bool {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH":
		return true
	default:
		return false
	}
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func queryError(sqlText, op string, err error) *QueryError {
	return &QueryError{SQL: sqlText, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

func rowMap(columns []string, values []any) map[string]any {
	row := make(map[string]any, len(columns))
	for i, column := range columns {
		switch typed := values[i].(type) {
		case []byte:
			row[column] = string(typed)
		default:
			row[column] = typed
		}
	}
	return row
}
