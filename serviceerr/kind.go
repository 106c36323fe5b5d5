package serviceerr

import "net/http"

// Kind is the closed set of error identities that cross the service boundary.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindNotFound        Kind = "NOT_FOUND"
	KindDuplicate       Kind = "DUPLICATE_ENTRY"
	KindDatabase        Kind = "DATABASE_ERROR"
	KindPermission      Kind = "PERMISSION_DENIED"
	KindRateLimit       Kind = "RATE_LIMIT_EXCEEDED"
	KindExternalService Kind = "EXTERNAL_SERVICE_ERROR"
	KindUnknown         Kind = "UNKNOWN_ERROR"
)

var kinds = []Kind{
	KindValidation,
	KindNotFound,
	KindDuplicate,
	KindDatabase,
	KindPermission,
	KindRateLimit,
	KindExternalService,
	KindUnknown,
}

// Kinds returns every Kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Retryable reports whether a failure of this kind may succeed on retry.
// Validation and not-found failures never do.
func (k Kind) Retryable() bool {
	return k != KindValidation && k != KindNotFound
}

// HTTPStatus maps the kind to the status code used by HTTP handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate:
		return http.StatusConflict
	case KindPermission:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	return string(k)
}
