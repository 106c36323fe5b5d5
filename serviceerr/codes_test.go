package serviceerr

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/usdfinancial/service-base/pkg/testsupport"
)

func TestCodeTable_LookupOrder(t *testing.T) {
	table := CodeTable{
		Codes:    map[string]Rule{"08006": {Kind: KindDatabase, Message: "exact"}},
		Classes:  map[string]Rule{"08": {Kind: KindExternalService, Message: "class"}},
		Prefixes: map[string]Rule{"0": {Kind: KindUnknown, Message: "short"}, "08P": {Kind: KindRateLimit, Message: "long"}},
	}

	tests := []struct {
		de   DriverError
		want string
	}{
		{DriverError{Code: "08006", Class: "08"}, "exact"},
		{DriverError{Code: "08001", Class: "08"}, "class"},
		{DriverError{Code: "08P01"}, "long"},
		{DriverError{Code: "01000"}, "short"},
	}

	for _, tt := range tests {
		rule, ok := table.Lookup(&tt.de)
		if !ok {
			t.Fatalf("expected a rule for %s", tt.de.Code)
		}
		if rule.Message != tt.want {
			t.Errorf("%s: got %q, want %q", tt.de.Code, rule.Message, tt.want)
		}
	}

	if _, ok := table.Lookup(&DriverError{Code: "99999"}); ok {
		t.Error("expected no rule for unmapped code")
	}
	if _, ok := table.Lookup(nil); ok {
		t.Error("expected no rule for nil driver error")
	}
}

func TestParseCodeTable_OverridesDefaults(t *testing.T) {
	data := testsupport.LoadFixture(t, testsupport.FixturePath("codes_override.yaml"))

	table, err := ParseCodeTable(data)
	if err != nil {
		t.Fatalf("ParseCodeTable() error = %v", err)
	}

	if r := table.Codes["23505"]; r.Kind != KindValidation || r.Message != "Email already registered" {
		t.Errorf("expected override for 23505, got %+v", r)
	}
	if r := table.Codes["P0001"]; r.Kind != KindPermission {
		t.Errorf("expected new rule for P0001, got %+v", r)
	}
	if r := table.Codes["23503"]; r.Kind != KindValidation {
		t.Errorf("expected built-in 23503 to survive the merge, got %+v", r)
	}
	if _, ok := table.Classes["08"]; !ok {
		t.Error("expected built-in connection class to survive the merge")
	}
	if r := table.Codes["CONNECTION_ERROR"]; r.Kind != KindExternalService {
		t.Errorf("expected repository codes to survive the merge, got %+v", r)
	}
}

func TestParseCodeTable_RejectsUnknownKind(t *testing.T) {
	_, err := ParseCodeTable([]byte(`
codes:
  "23505":
    kind: SOMETHING_ELSE
`))
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestLoadCodeTable_SQLiteFile(t *testing.T) {
	path := testsupport.WriteFile(t, "codes.yaml", []byte("driver: sqlite3\n"))

	table, err := LoadCodeTable(path)
	if err != nil {
		t.Fatalf("LoadCodeTable() error = %v", err)
	}
	if table.Driver != DriverSQLite {
		t.Errorf("expected sqlite3 driver, got %q", table.Driver)
	}
	if len(table.Codes) != len(SQLiteCodes().Codes) {
		t.Errorf("expected built-in sqlite codes, got %d entries", len(table.Codes))
	}
}

func TestLoadCodeTable_MissingFile(t *testing.T) {
	if _, err := LoadCodeTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCodeTable_Entries(t *testing.T) {
	entries := PostgresCodes().Entries()
	testsupport.CompareWithGolden(t, testsupport.GoldenPath("postgres_codes.txt"), []byte(strings.Join(entries, "\n")+"\n"))
}

func TestRepositoryCodes_IncludedInDriverTables(t *testing.T) {
	repo := RepositoryCodes()
	if err := repo.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	for _, table := range []CodeTable{PostgresCodes(), SQLiteCodes()} {
		for code, want := range repo.Codes {
			if got, ok := table.Codes[code]; !ok || got != want {
				t.Errorf("%s: code %s = %+v, want %+v", table.Driver, code, got, want)
			}
		}
		for class := range repo.Classes {
			if _, ok := table.Classes[class]; !ok {
				t.Errorf("%s: missing class %s", table.Driver, class)
			}
		}
	}
}
