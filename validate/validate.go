// Package validate holds the input checks services run before touching the
// database. Every failure is a *serviceerr.ServiceError of kind VALIDATION_ERROR.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/usdfinancial/service-base/serviceerr"
)

var (
	uuidPattern    = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

func fail(field, message string) error {
	e := serviceerr.New(serviceerr.KindValidation, message)
	e.Details = map[string]any{"field": field}
	return e
}

// RequireFields fails when any of fields is absent from data, nil, or a
// blank string. All missing fields are reported in one message.
func RequireFields(data map[string]any, fields ...string) error {
	present := validation.By(func(value any) error {
		if isBlank(value) {
			return validation.ErrRequired
		}
		return nil
	})

	var missing []string
	for _, field := range fields {
		if err := validation.Validate(data[field], present); err != nil {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	e := serviceerr.New(serviceerr.KindValidation, "Missing required fields: "+strings.Join(missing, ", "))
	e.Details = map[string]any{"fields": missing}
	return e
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// RequireUUID fails unless value is a canonical RFC 4122 UUID of version 1-5.
// An empty field name defaults to "id".
func RequireUUID(value, field string) error {
	if field == "" {
		field = "id"
	}
	msg := "Invalid UUID format for " + field
	err := validation.Validate(value,
		validation.Required.Error(msg),
		validation.Match(uuidPattern).Error(msg),
	)
	if err != nil {
		return fail(field, msg)
	}
	return nil
}

// DecimalOption bounds the value accepted by RequireDecimal.
type DecimalOption func(*decimalBounds)

type decimalBounds struct {
	min, max       float64
	hasMin, hasMax bool
	positive       bool
}

// Min rejects values below min.
func Min(min float64) DecimalOption {
	return func(b *decimalBounds) { b.min, b.hasMin = min, true }
}

// Max rejects values above max.
func Max(max float64) DecimalOption {
	return func(b *decimalBounds) { b.max, b.hasMax = max, true }
}

// Positive rejects zero and negative values.
func Positive() DecimalOption {
	return func(b *decimalBounds) { b.positive = true }
}

// RequireDecimal parses value as a number and returns its canonical string
// form, so "007.50" becomes "7.5". Strings, json.Number and Go numeric types
// are accepted.
func RequireDecimal(value any, field string, opts ...DecimalOption) (string, error) {
	var bounds decimalBounds
	for _, opt := range opts {
		opt(&bounds)
	}

	f, ok := parseNumber(value)
	if !ok {
		return "", fail(field, field+" must be a valid number")
	}

	if bounds.positive && f <= 0 {
		return "", fail(field, field+" must be greater than 0")
	}
	if bounds.hasMin && f < bounds.min {
		return "", fail(field, fmt.Sprintf("%s must be at least %s", field, formatFloat(bounds.min)))
	}
	if bounds.hasMax && f > bounds.max {
		return "", fail(field, fmt.Sprintf("%s must not exceed %s", field, formatFloat(bounds.max)))
	}

	return formatFloat(f), nil
}

func parseNumber(value any) (float64, bool) {
	var s string
	switch v := value.(type) {
	case nil:
		return 0, false
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		return v, finite(v)
	case float32:
		return float64(v), finite(float64(v))
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(v).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(v).Uint()), true
	case fmt.Stringer:
		s = v.String()
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RequireEnum fails unless value is exactly one of allowed.
func RequireEnum(value string, allowed []string, field string) error {
	options := make([]any, len(allowed))
	emptyAllowed := false
	for i, a := range allowed {
		options[i] = a
		emptyAllowed = emptyAllowed || a == ""
	}

	msg := fmt.Sprintf("Invalid %s. Must be one of: %s", field, strings.Join(allowed, ", "))
	rules := []validation.Rule{validation.In(options...).Error(msg)}
	if !emptyAllowed {
		rules = append([]validation.Rule{validation.Required.Error(msg)}, rules...)
	}

	if err := validation.Validate(value, rules...); err != nil {
		return fail(field, msg)
	}
	return nil
}

// RequireAddress fails unless value looks like an EVM address: 0x and 40 hex
// characters. The checksum is not verified.
func RequireAddress(value, field string) error {
	msg := fmt.Sprintf("Invalid %s format", field)
	err := validation.Validate(value,
		validation.Required.Error(msg),
		validation.Match(addressPattern).Error(msg),
	)
	if err != nil {
		return fail(field, msg)
	}
	return nil
}
