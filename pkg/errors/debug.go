package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgFailure is the common shape of pgx and lib/pq server errors.
type pgFailure struct {
	code, constraint, table, column, detail, message string
}

func postgresFailure(err error) (pgFailure, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgFailure{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgFailure{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgFailure{}, false
}

// LogFields flattens err into structured log fields: the typed code and class,
// the unwrap chain, the failing checkout step when one was recorded, and
// Postgres diagnostics when the root cause came from the database.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}

	if typed := As(err); typed != nil {
		meta := MetadataFor(typed.Code())
		fields["error_code"] = typed.Code()
		fields["error_class"] = meta.Class
		if meta.Class == ClassIntegrity {
			fields["alert"] = true
		}
		if details, ok := typed.Details().(map[string]any); ok {
			if step, ok := details["step"]; ok {
				fields["step"] = step
			}
		}
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	if pg, ok := postgresFailure(err); ok {
		fields["pg_code"] = pg.code
		fields["pg_constraint"] = pg.constraint
		fields["pg_table"] = pg.table
		fields["pg_column"] = pg.column
		fields["pg_detail"] = pg.detail
		fields["pg_message"] = pg.message
	}
	return fields
}
