package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/serviceerr"
)

const transactionOperation = "withTransaction"

// RetryPolicy bounds how often a failed transaction is attempted and how
// long to wait in between. The wait before attempt n+1 is
// min(InitialInterval * Multiplier^(n-1), MaxInterval).
type RetryPolicy struct {
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" json:"multiplier"`
}

// DefaultRetryPolicy waits 100ms, 200ms, 400ms... capped at 1s, for at most
// three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	}
}

// Validate checks the policy values.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 1:
		return errors.Newf("retry policy: max_retries must be at least 1, got %d", p.MaxRetries)
	case p.InitialInterval < 0 || p.MaxInterval < p.InitialInterval:
		return errors.Newf("retry policy: intervals must satisfy 0 <= initial (%s) <= max (%s)", p.InitialInterval, p.MaxInterval)
	case p.Multiplier < 1:
		return errors.Newf("retry policy: multiplier must be at least 1, got %v", p.Multiplier)
	}
	return nil
}

// Delays returns the waits between attempts for a call allowed maxRetries
// attempts.
func (p RetryPolicy) Delays(maxRetries int) []time.Duration {
	if maxRetries < 2 {
		return nil
	}
	b := p.backOff()
	delays := make([]time.Duration, maxRetries-1)
	for i := range delays {
		delays[i] = b.NextBackOff()
	}
	return delays
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// TxFunc is a unit of work run inside a transaction. It must use tx for
// every statement that belongs to the transaction.
type TxFunc[T any] func(ctx context.Context, tx bun.IDB) (T, error)

// WithTransaction runs fn with the service's retry policy.
func WithTransaction[T any](ctx context.Context, s *BaseService, fn TxFunc[T]) (T, error) {
	return WithTransactionRetries(ctx, s, s.retry.MaxRetries, fn)
}

// WithTransactionRetries runs fn inside BEGIN/COMMIT, attempting at most
// maxRetries times. A failed attempt is rolled back and classified;
// VALIDATION_ERROR and NOT_FOUND are returned at once, anything else is
// retried after a backoff wait until the attempts run out. A failed COMMIT
// counts as a failed attempt. After a successful commit the service table
// and its related tables are invalidated.
//
// Errors are always *serviceerr.ServiceError. Cancelling ctx stops the loop
// during the wait between attempts.
func WithTransactionRetries[T any](ctx context.Context, s *BaseService, maxRetries int, fn TxFunc[T]) (T, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := runAttempt(ctx, s, fn)
		if err == nil {
			s.metrics.RecordAttempt(s.name, OutcomeCommitted)
			return result, nil
		}

		var zero T
		se := s.classify(err, transactionOperation)
		if !se.Kind.Retryable() || attempt >= maxRetries {
			s.metrics.RecordAttempt(s.name, OutcomeFailed)
			return zero, backoff.Permanent(se)
		}
		s.metrics.RecordAttempt(s.name, OutcomeRetried)
		return zero, se
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("wait", wait),
			zap.String("kind", string(serviceerr.KindOf(err))),
			zap.Error(err),
		)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.retry.backOff()),
		backoff.WithMaxTries(uint(maxRetries)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var zero T
		if se, ok := serviceerr.As(err); ok {
			return zero, se
		}
		// ctx ended while waiting for the next attempt.
		return zero, s.classify(err, transactionOperation)
	}

	s.InvalidateTable(s.table)
	return result, nil
}

func runAttempt[T any](ctx context.Context, s *BaseService, fn TxFunc[T]) (result T, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, errors.Wrap(err, "begin")
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		s.rollback(tx)
		var zero T
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		s.rollback(tx)
		var zero T
		return zero, errors.Wrap(err, "commit")
	}
	return result, nil
}

func (s *BaseService) rollback(tx bun.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Warn("rollback failed", zap.Error(err))
	}
}
