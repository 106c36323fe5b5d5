package serviceerr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/usdfinancial/service-base/pkg/testsupport"
)

func newObservedClassifier(codes CodeTable) (*Classifier, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClassifier(codes, WithLogger(zap.New(core)), WithClock(func() time.Time { return fixed }))
	return c, logs
}

func TestClassify_PostgresCodes(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	tests := []struct {
		code        pq.ErrorCode
		wantKind    Kind
		wantMessage string
	}{
		{"23505", KindDuplicate, "Record already exists"},
		{"23503", KindValidation, "Referenced record not found"},
		{"23502", KindValidation, "Required field missing"},
		{"42P01", KindDatabase, "Database schema error"},
		{"42703", KindDatabase, "Database schema error"},
		{"08006", KindExternalService, "Database connection error"},
		{"08001", KindExternalService, "Database connection error"},
		{"40P01", KindDatabase, "Transaction conflict"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			raw := &pq.Error{Code: tt.code, Message: "driver says something else entirely"}
			got := c.Classify(raw, "createUser", "UserService", "users")

			if got.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Operation != "createUser" || got.Service != "UserService" {
				t.Errorf("expected operation and service to be set, got %q/%q", got.Operation, got.Service)
			}
		})
	}
}

func TestClassify_DuplicateIgnoresDriverMessage(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	for _, msg := range []string{"", "not found", "no rows in result set", "duplicate key value"} {
		got := c.Classify(&pq.Error{Code: "23505", Message: msg}, "op", "svc", "")
		if got.Kind != KindDuplicate || got.Message != "Record already exists" {
			t.Errorf("message %q classified as %s %q", msg, got.Kind, got.Message)
		}
	}
}

func TestClassify_WrappedDriverError(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	raw := fmt.Errorf("insert user: %w", &pq.Error{Code: "23505"})
	got := c.Classify(raw, "createUser", "UserService", "users")
	if got.Kind != KindDuplicate {
		t.Fatalf("expected wrapped pq error to classify as duplicate, got %s", got.Kind)
	}

	var pqErr *pq.Error
	if !errors.As(got, &pqErr) {
		t.Error("expected the driver error to stay reachable through errors.As")
	}
}

type repositoryCase struct {
	Name    string `json:"name"`
	Driver  string `json:"driver"`
	Code    string `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func TestClassify_RepositoryMappedErrors(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	var cases []repositoryCase
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("repository_errors.json"), &cases)
	if len(cases) == 0 {
		t.Fatal("expected fixture cases")
	}

	for _, tt := range cases {
		t.Run(tt.Name, func(t *testing.T) {
			raw := repository.MapDatabaseError(&pq.Error{Code: pq.ErrorCode(tt.Code), Message: "server closed the connection"}, tt.Driver)
			got := c.Classify(raw, "getUser", "UserService", "users")

			if got.Kind != tt.Kind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.Kind)
			}
			if got.Message != tt.Message {
				t.Errorf("message = %q, want %q", got.Message, tt.Message)
			}
			if got.Details["code"] != tt.Detail {
				t.Errorf("code detail = %v, want %s", got.Details["code"], tt.Detail)
			}
			if got.Operation != "getUser" {
				t.Errorf("operation = %q", got.Operation)
			}
		})
	}
}

func TestClassify_RepositoryNotFoundAndFallback(t *testing.T) {
	c, _ := newObservedClassifier(SQLiteCodes())

	got := c.Classify(repository.MapDatabaseError(sql.ErrNoRows, "sqlite"), "getUser", "UserService", "users")
	if got.Kind != KindNotFound || got.Message != "Record not found" {
		t.Errorf("not found classified as %s %q", got.Kind, got.Message)
	}

	got = c.Classify(repository.NewRecordNotFound(), "getUser", "UserService", "users")
	if got.Kind != KindNotFound {
		t.Errorf("expected NOT_FOUND, got %s", got.Kind)
	}

	busy := sqlite3.Error{Code: sqlite3.ErrBusy, ExtendedCode: sqlite3.ErrNoExtended(sqlite3.ErrBusy)}
	got = c.Classify(repository.MapDatabaseError(busy, "sqlite"), "createUser", "UserService", "users")
	if got.Kind != KindExternalService {
		t.Errorf("expected busy database to be EXTERNAL_SERVICE_ERROR, got %s", got.Kind)
	}

	got = c.Classify(repository.MapDatabaseError(errors.New("disk full"), "sqlite"), "createUser", "UserService", "users")
	if got.Kind != KindDatabase || got.Message != "Database operation failed" {
		t.Errorf("unmapped repository error classified as %s %q", got.Kind, got.Message)
	}
}

func TestAsDriverError_Repository(t *testing.T) {
	raw := repository.MapDatabaseError(&pq.Error{Code: "23505", Constraint: "users_email_key"}, "postgres")

	de, ok := AsDriverError(fmt.Errorf("get user: %w", raw))
	if !ok {
		t.Fatal("expected a driver error")
	}
	if de.Driver != DriverRepository || de.Code != "DUPLICATE_KEY" || de.Class != string(repository.CategoryDatabaseDuplicate) {
		t.Errorf("unexpected driver error %+v", de)
	}
	if de.Constraint != "users_email_key" {
		t.Errorf("constraint = %q", de.Constraint)
	}
}

func TestClassify_SQLiteCodes(t *testing.T) {
	c, _ := newObservedClassifier(SQLiteCodes())

	tests := []struct {
		name string
		err  sqlite3.Error
		want Kind
	}{
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, KindDuplicate},
		{"foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, KindValidation},
		{"not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, KindValidation},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy, ExtendedCode: sqlite3.ErrNoExtended(sqlite3.ErrBusy)}, KindExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.err, "op", "svc", ""); got.Kind != tt.want {
				t.Errorf("kind = %s, want %s", got.Kind, tt.want)
			}
		})
	}
}

func TestClassify_NotFound(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	for _, raw := range []error{
		sql.ErrNoRows,
		fmt.Errorf("get user: %w", sql.ErrNoRows),
		errors.New("user not found"),
		&pq.Error{Code: "P0002", Message: "query returned no rows"},
	} {
		got := c.Classify(raw, "getUser", "UserService", "users")
		if got.Kind != KindNotFound || got.Message != "Record not found" {
			t.Errorf("%v classified as %s %q", raw, got.Kind, got.Message)
		}
	}
}

func TestClassify_NotFoundIsCaseSensitive(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	got := c.Classify(errors.New("User Not Found"), "getUser", "UserService", "")
	if got.Kind != KindUnknown {
		t.Errorf("expected UNKNOWN_ERROR for differently cased message, got %s", got.Kind)
	}
}

func TestClassify_Unknown(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	got := c.Classify(errors.New("socket closed"), "transfer", "WalletService", "")
	if got.Kind != KindUnknown || got.Message != "socket closed" {
		t.Errorf("got %s %q", got.Kind, got.Message)
	}

	got = c.Classify(errors.New(""), "transfer", "WalletService", "")
	if got.Message != "transfer failed" {
		t.Errorf("expected default message, got %q", got.Message)
	}
}

func TestClassify_PassesThroughServiceErrors(t *testing.T) {
	c, _ := newObservedClassifier(PostgresCodes())

	original := New(KindValidation, "amount must be a valid number")
	got := c.Classify(original, "createInvestment", "InvestmentService", "user_investments")

	if got.Kind != KindValidation || got.Message != original.Message {
		t.Fatalf("expected passthrough, got %s %q", got.Kind, got.Message)
	}
	if got.Operation != "createInvestment" || got.Service != "InvestmentService" {
		t.Errorf("expected context to be filled in, got %q/%q", got.Operation, got.Service)
	}
	if original.Operation != "" {
		t.Error("expected the original error to stay unchanged")
	}
}

func TestClassify_LogsStructuredRecord(t *testing.T) {
	c, logs := newObservedClassifier(PostgresCodes())

	c.Classify(&pq.Error{Code: "23505", Message: "duplicate key"}, "createUser", "UserService", "users")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	for key, want := range map[string]string{
		"service":    "UserService",
		"operation":  "createUser",
		"table":      "users",
		"error_code": "23505",
		"kind":       "DUPLICATE_ENTRY",
	} {
		if got := fields[key]; got != want {
			t.Errorf("field %s = %v, want %v", key, got, want)
		}
	}
	if _, ok := fields["stack"]; !ok {
		t.Error("expected a stack field")
	}
}

func TestClassify_Nil(t *testing.T) {
	c, logs := newObservedClassifier(PostgresCodes())
	if got := c.Classify(nil, "op", "svc", ""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if logs.Len() != 0 {
		t.Error("expected no log for nil error")
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindNotFound:        http.StatusNotFound,
		KindDuplicate:       http.StatusConflict,
		KindPermission:      http.StatusForbidden,
		KindRateLimit:       http.StatusTooManyRequests,
		KindExternalService: http.StatusBadGateway,
		KindDatabase:        http.StatusInternalServerError,
		KindUnknown:         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s: got %d, want %d", kind, got, want)
		}
	}
}

func TestServiceError_IsByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindNotFound, "Record not found"))

	if !errors.Is(err, &ServiceError{Kind: KindNotFound}) {
		t.Error("expected errors.Is to match by kind")
	}
	if errors.Is(err, &ServiceError{Kind: KindValidation}) {
		t.Error("expected different kinds not to match")
	}
	if !IsKind(err, KindValidation, KindNotFound) {
		t.Error("expected IsKind to match one of the kinds")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected plain errors to report UNKNOWN_ERROR")
	}
}

func TestKind_Retryable(t *testing.T) {
	for _, k := range Kinds() {
		want := k != KindValidation && k != KindNotFound
		if k.Retryable() != want {
			t.Errorf("%s: Retryable() = %v", k, k.Retryable())
		}
	}
}
