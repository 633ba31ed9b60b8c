package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PG         PGDetail `json:"pg,omitempty"`
}

// PGDetail is the driver-independent view of a Postgres error.
type PGDetail struct {
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG, _ = PostgresDetail(err)
	return d
}

// PostgresDetail extracts the server error from either pgx or lib/pq.
func PostgresDetail(err error) (PGDetail, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGDetail{}, false
}

// Fields is the subset of the dump worth attaching to every error log line.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if d.PG.Code != "" {
		fields["pg_code"] = d.PG.Code
	}
	if d.PG.Constraint != "" {
		fields["pg_constraint"] = d.PG.Constraint
	}
	if d.PG.Table != "" {
		fields["pg_table"] = d.PG.Table
	}
	return fields
}
