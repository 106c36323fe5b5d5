package serviceerr

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// ServiceError is the only error type returned across the service boundary.
// Values are treated as immutable; the With* helpers return copies.
type ServiceError struct {
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message"`
	Operation string         `json:"operation,omitempty"`
	Service   string         `json:"service,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`

	cause error
}

// New creates a ServiceError of the given kind.
func New(kind Kind, message string) *ServiceError {
	return &ServiceError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates a ServiceError with a formatted message.
func Newf(kind Kind, format string, args ...any) *ServiceError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates a ServiceError that keeps cause reachable through errors.Is/As.
func Wrap(cause error, kind Kind, message string) *ServiceError {
	e := New(kind, message)
	if cause != nil {
		e.cause = errors.WithStack(cause)
	}
	return e
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	switch {
	case e.Service != "" && e.Operation != "":
		return fmt.Sprintf("%s.%s: [%s] %s", e.Service, e.Operation, e.Kind, e.Message)
	case e.Operation != "":
		return fmt.Sprintf("%s: [%s] %s", e.Operation, e.Kind, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error, if any.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// Is matches another *ServiceError by kind, so errors.Is(err, &ServiceError{Kind: KindNotFound})
// works as a kind check.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// HTTPStatus is shorthand for e.Kind.HTTPStatus().
func (e *ServiceError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithContext returns a copy with operation and service filled in where
// they are still empty.
func (e *ServiceError) WithContext(operation, service string) *ServiceError {
	cp := e.clone()
	if cp.Operation == "" {
		cp.Operation = operation
	}
	if cp.Service == "" {
		cp.Service = service
	}
	return cp
}

// WithDetail returns a copy carrying key=value in Details.
func (e *ServiceError) WithDetail(key string, value any) *ServiceError {
	cp := e.clone()
	cp.Details[key] = value
	return cp
}

func (e *ServiceError) clone() *ServiceError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	return &cp
}

// As returns the *ServiceError in err's chain, if any.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown when err is not a ServiceError.
func KindOf(err error) Kind {
	if se, ok := As(err); ok {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a ServiceError of any of the given kinds.
func IsKind(err error, kinds ...Kind) bool {
	se, ok := As(err)
	if !ok {
		return false
	}
	for _, k := range kinds {
		if se.Kind == k {
			return true
		}
	}
	return false
}
