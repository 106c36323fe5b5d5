package serviceerr

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const notFoundMessage = "Record not found"

// Classifier turns raw failures into ServiceErrors using a CodeTable, and
// logs one structured record per classification.
type Classifier struct {
	codes  CodeTable
	logger *zap.Logger
	now    func() time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithLogger sets the logger classification records are written to.
func WithLogger(logger *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source for ServiceError timestamps.
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClassifier creates a Classifier for the given code table.
func NewClassifier(codes CodeTable, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		codes:  codes,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codes returns the table in use.
func (c *Classifier) Codes() CodeTable {
	return c.codes
}

// Classify maps raw into a ServiceError. It never returns nil for a non-nil raw.
//
// ServiceErrors pass through with operation and service filled in. Known
// driver codes map through the code table regardless of the driver message,
// as do the text codes of errors go-repository-bun has already mapped.
// sql.ErrNoRows and messages containing "not found" or "no rows" become
// NOT_FOUND. Anything else is UNKNOWN_ERROR carrying the raw message.
func (c *Classifier) Classify(raw error, operation, service, table string) *ServiceError {
	if raw == nil {
		return nil
	}

	var out *ServiceError
	de, isDriver := AsDriverError(raw)

	if se, ok := As(raw); ok {
		out = se.WithContext(operation, service)
	} else if rule, ok := c.codes.Lookup(de); isDriver && ok {
		out = c.build(raw, rule.Kind, rule.Message)
		out.Details["code"] = de.Code
		if de.Constraint != "" {
			out.Details["constraint"] = de.Constraint
		}
	} else if isNotFound(raw) {
		out = c.build(raw, KindNotFound, notFoundMessage)
	} else {
		msg := raw.Error()
		if msg == "" {
			msg = operation + " failed"
		}
		out = c.build(raw, KindUnknown, msg)
	}

	if out.Operation == "" {
		out.Operation = operation
	}
	if out.Service == "" {
		out.Service = service
	}
	if table != "" {
		out.Details["table"] = table
	}

	c.log(raw, de, out, table)
	return out
}

func (c *Classifier) build(raw error, kind Kind, message string) *ServiceError {
	e := Wrap(raw, kind, message)
	e.Timestamp = c.now().UTC()
	e.Details = map[string]any{}
	return e
}

func (c *Classifier) log(raw error, de *DriverError, out *ServiceError, table string) {
	fields := []zap.Field{
		zap.Time("timestamp", out.Timestamp),
		zap.String("service", out.Service),
		zap.String("operation", out.Operation),
		zap.String("kind", string(out.Kind)),
		zap.String("error_name", fmt.Sprintf("%T", errors.UnwrapAll(raw))),
		zap.String("error_message", raw.Error()),
		zap.String("table", table),
		zap.String("stack", fmt.Sprintf("%+v", errors.WithStackDepth(raw, 2))),
	}
	if de != nil {
		fields = append(fields, zap.String("error_code", de.Code))
	}
	c.logger.Error("service operation failed", fields...)
}

func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no rows")
}
