package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// classify maps driver errors onto the agent error taxonomy. Bad input surfaces as a
// non-retryable DataError; everything else, including pool exhaustion and dropped
// connections, is a retryable StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := agenterrors.As(err); ok {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23": // data exception, integrity constraint violation
			return &agenterrors.Error{
				Kind:    agenterrors.KindData,
				Op:      op,
				Message: pqErr.Message,
				Err:     err,
			}
		case "53": // insufficient resources, including 53300 too_many_connections
			return agenterrors.NewStorageError(op, "database out of resources", err)
		case "08", "57": // connection exception, operator intervention
			return agenterrors.NewStorageError(op, "database unavailable", err)
		}
		return agenterrors.NewStorageError(op, pqErr.Message, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return agenterrors.NewStorageError(op, "timed out waiting for the database", err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return agenterrors.NewStorageError(op, "connection lost", err)
	}
	return agenterrors.NewStorageError(op, err.Error(), err)
}
