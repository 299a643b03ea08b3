package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// The outbox error types expose where they happened through these methods,
// so a dump can report them without this package importing the outbox.
type (
	operationError interface {
		Operation() string
	}
	outboxMessageError interface {
		OutboxMessageID() string
	}
	outboxFailureError interface {
		FailureReason() string
	}
)

// ErrorDump is the log friendly view of an error chain.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	// Op is the innermost outbox or codec operation that failed.
	Op              string `json:"op,omitempty"`
	OutboxMessageID string `json:"outbox_message_id,omitempty"`
	// OutboxFailure is the quarantine reason, serialization or publish.
	OutboxFailure string `json:"outbox_failure,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if op, ok := e.(operationError); ok {
			d.Op = op.Operation()
		}
		if msg, ok := e.(outboxMessageError); ok && d.OutboxMessageID == "" {
			d.OutboxMessageID = msg.OutboxMessageID()
		}
		if failure, ok := e.(outboxFailureError); ok && d.OutboxFailure == "" {
			d.OutboxFailure = failure.FailureReason()
		}
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	return d
}
