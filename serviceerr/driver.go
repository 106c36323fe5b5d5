package serviceerr

import (
	"strconv"

	"github.com/cockroachdb/errors"
	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	// DriverRepository marks failures go-repository-bun already mapped.
	// Code is the repository text code and Class its category.
	DriverRepository = "repository"
)

// DriverError is the database driver failure translated at the storage
// boundary. Code is the most specific code the driver reports; Class is the
// coarser grouping (SQLSTATE class for Postgres, primary result code for SQLite).
type DriverError struct {
	Driver     string
	Code       string
	Class      string
	Message    string
	Table      string
	Constraint string

	err error
}

func (e *DriverError) Error() string {
	return e.Driver + " error " + e.Code + ": " + e.Message
}

func (e *DriverError) Unwrap() error {
	return e.err
}

// AsDriverError finds a known driver error in err's chain and translates it.
func AsDriverError(err error) (*DriverError, bool) {
	if err == nil {
		return nil, false
	}

	var de *DriverError
	if errors.As(err, &de) {
		return de, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Driver:     DriverPostgres,
			Code:       string(pqErr.Code),
			Class:      string(pqErr.Code.Class()),
			Message:    pqErr.Message,
			Table:      pqErr.Table,
			Constraint: pqErr.Constraint,
			err:        pqErr,
		}, true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DriverError{
			Driver:  DriverSQLite,
			Code:    strconv.Itoa(int(liteErr.ExtendedCode)),
			Class:   strconv.Itoa(int(liteErr.Code)),
			Message: liteErr.Error(),
			err:     liteErr,
		}, true
	}

	if base := repositoryError(err); base != nil {
		de := &DriverError{
			Driver:  DriverRepository,
			Code:    base.TextCode,
			Class:   string(base.Category),
			Message: base.Message,
			err:     base,
		}
		if c, ok := base.Metadata["constraint"].(string); ok {
			de.Constraint = c
		}
		return de, true
	}

	return nil, false
}

// repositoryError returns the go-errors value go-repository-bun puts in place
// of the driver error. Its mappers drop the cause, so the raw driver checks
// above only match when the repository wrapped an unmapped failure.
func repositoryError(err error) *goerrors.Error {
	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.BaseError
	}
	var base *goerrors.Error
	if errors.As(err, &base) {
		return base
	}
	return nil
}
