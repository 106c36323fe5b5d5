package validate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/usdfinancial/service-base/serviceerr"
)

func assertValidation(t *testing.T, err error, wantMessage string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error %q, got nil", wantMessage)
	}
	se, ok := serviceerr.As(err)
	if !ok {
		t.Fatalf("expected *ServiceError, got %T", err)
	}
	if se.Kind != serviceerr.KindValidation {
		t.Errorf("kind = %s, want VALIDATION_ERROR", se.Kind)
	}
	if !strings.Contains(se.Message, wantMessage) {
		t.Errorf("message = %q, want it to contain %q", se.Message, wantMessage)
	}
}

func TestRequireFields(t *testing.T) {
	data := map[string]any{
		"email":      "a@b.co",
		"first_name": "  ",
		"last_name":  nil,
		"tags":       []string(nil),
		"age":        0,
	}

	if err := RequireFields(data, "email", "age"); err != nil {
		t.Fatalf("expected present fields to pass, got %v", err)
	}

	err := RequireFields(data, "email", "first_name", "last_name", "phone", "tags")
	assertValidation(t, err, "Missing required fields: first_name, last_name, phone, tags")

	se, _ := serviceerr.As(err)
	if got := se.Details["fields"].([]string); len(got) != 4 {
		t.Errorf("expected 4 missing fields in details, got %v", got)
	}
}

func TestRequireUUID(t *testing.T) {
	valid := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // v1
		"886313e1-3b8a-5372-9b90-0c9aee199e5d", // v5
		"550E8400-E29B-41D4-A716-446655440000",
	}
	for _, v := range valid {
		if err := RequireUUID(v, ""); err != nil {
			t.Errorf("RequireUUID(%q) = %v", v, err)
		}
	}

	invalid := []string{
		"invalid-uuid",
		"",
		"550e8400-e29b-61d4-a716-446655440000", // version 6
		"550e8400-e29b-41d4-c716-446655440000", // bad variant
		"550e8400e29b41d4a716446655440000",
	}
	for _, v := range invalid {
		assertValidation(t, RequireUUID(v, ""), "Invalid UUID format for id")
	}

	assertValidation(t, RequireUUID("nope", "user_id"), "Invalid UUID format for user_id")
}

func TestRequireDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value any
		opts  []DecimalOption
		want  string
		err   string
	}{
		{name: "leading zeros", value: "007.50", want: "7.5"},
		{name: "integer string", value: "100", want: "100"},
		{name: "padded", value: " 12.25 ", want: "12.25"},
		{name: "float", value: 0.1, want: "0.1"},
		{name: "int", value: 42, want: "42"},
		{name: "uint", value: uint8(7), want: "7"},
		{name: "json number", value: json.Number("3.14"), want: "3.14"},
		{name: "zero", value: "0", want: "0"},
		{name: "not a number", value: "abc", err: "amount must be a valid number"},
		{name: "trailing garbage", value: "12abc", err: "amount must be a valid number"},
		{name: "empty", value: "", err: "amount must be a valid number"},
		{name: "nil", value: nil, err: "amount must be a valid number"},
		{name: "nan", value: "NaN", err: "amount must be a valid number"},
		{name: "unsupported type", value: struct{}{}, err: "amount must be a valid number"},
		{name: "below min", value: "-1", opts: []DecimalOption{Min(0)}, err: "amount must be at least 0"},
		{name: "zero below min", value: 0, opts: []DecimalOption{Min(1)}, err: "amount must be at least 1"},
		{name: "above max", value: "1000000.5", opts: []DecimalOption{Max(1000000)}, err: "amount must not exceed 1000000"},
		{name: "positive", value: "0.01", opts: []DecimalOption{Positive()}, want: "0.01"},
		{name: "zero not positive", value: "0", opts: []DecimalOption{Positive()}, err: "amount must be greater than 0"},
		{name: "negative not positive", value: -5, opts: []DecimalOption{Positive()}, err: "amount must be greater than 0"},
		{name: "within bounds", value: "10", opts: []DecimalOption{Min(1), Max(10)}, want: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequireDecimal(tt.value, "amount", tt.opts...)
			if tt.err != "" {
				assertValidation(t, err, tt.err)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireEnum(t *testing.T) {
	allowed := []string{"active", "paused", "closed"}

	if err := RequireEnum("paused", allowed, "status"); err != nil {
		t.Fatalf("expected allowed value to pass, got %v", err)
	}
	assertValidation(t, RequireEnum("Active", allowed, "status"), "Invalid status. Must be one of: active, paused, closed")
	assertValidation(t, RequireEnum("", allowed, "status"), "Invalid status")

	if err := RequireEnum("", []string{"", "x"}, "status"); err != nil {
		t.Errorf("expected empty string to pass when allowed, got %v", err)
	}
}

func TestRequireAddress(t *testing.T) {
	if err := RequireAddress("0x52908400098527886E0F7030069857D2E4169EE7", "wallet_address"); err != nil {
		t.Fatalf("expected address to pass, got %v", err)
	}

	for _, v := range []string{
		"",
		"52908400098527886E0F7030069857D2E4169EE7",
		"0x52908400098527886E0F7030069857D2E4169EE",
		"0x52908400098527886E0F7030069857D2E4169EEZ",
	} {
		assertValidation(t, RequireAddress(v, "wallet_address"), "Invalid wallet_address format")
	}
}

func TestFailuresCarryField(t *testing.T) {
	_, err := RequireDecimal("x", "amount")
	se, _ := serviceerr.As(err)
	if se.Details["field"] != "amount" {
		t.Errorf("expected field detail, got %v", se.Details)
	}
	if se.Operation != "" {
		t.Errorf("expected the operation to be left to the caller, got %q", se.Operation)
	}
	if got := se.WithContext("createInvestment", "InvestmentService"); got.Operation != "createInvestment" {
		t.Errorf("expected caller operation, got %q", got.Operation)
	}
}
