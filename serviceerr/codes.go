package serviceerr

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

// Rule is the classification applied to a matching driver code.
type Rule struct {
	Kind    Kind   `yaml:"kind"`
	Message string `yaml:"message"`
}

// CodeTable translates driver error codes into kinds. Lookups try the exact
// code, then the class, then the longest matching prefix.
type CodeTable struct {
	Driver   string          `yaml:"driver"`
	Codes    map[string]Rule `yaml:"codes"`
	Classes  map[string]Rule `yaml:"classes"`
	Prefixes map[string]Rule `yaml:"prefixes"`
}

// Lookup returns the rule matching de, if any.
func (t CodeTable) Lookup(de *DriverError) (Rule, bool) {
	if de == nil {
		return Rule{}, false
	}
	if r, ok := t.Codes[de.Code]; ok && de.Code != "" {
		return r, true
	}
	if r, ok := t.Classes[de.Class]; ok && de.Class != "" {
		return r, true
	}

	best := ""
	for prefix := range t.Prefixes {
		if strings.HasPrefix(de.Code, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return t.Prefixes[best], true
	}
	return Rule{}, false
}

// Validate rejects rules with unknown kinds.
func (t CodeTable) Validate() error {
	for _, group := range []map[string]Rule{t.Codes, t.Classes, t.Prefixes} {
		for code, r := range group {
			if !r.Kind.Valid() {
				return errors.Newf("code table: code %q has unknown kind %q", code, r.Kind)
			}
		}
	}
	return nil
}

// Merge returns a table with other's entries layered over t's.
func (t CodeTable) Merge(other CodeTable) CodeTable {
	out := CodeTable{
		Driver:   t.Driver,
		Codes:    mergeRules(t.Codes, other.Codes),
		Classes:  mergeRules(t.Classes, other.Classes),
		Prefixes: mergeRules(t.Prefixes, other.Prefixes),
	}
	if other.Driver != "" {
		out.Driver = other.Driver
	}
	return out
}

// Entries lists every rule as "group code" pairs in a stable order.
func (t CodeTable) Entries() []string {
	var out []string
	add := func(group string, rules map[string]Rule) {
		codes := make([]string, 0, len(rules))
		for c := range rules {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, c := range codes {
			out = append(out, group+" "+c+" "+string(rules[c].Kind)+" "+strconv.Quote(rules[c].Message))
		}
	}
	add("code", t.Codes)
	add("class", t.Classes)
	add("prefix", t.Prefixes)
	return out
}

func mergeRules(base, over map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

var (
	ruleDuplicate  = Rule{Kind: KindDuplicate, Message: "Record already exists"}
	ruleReference  = Rule{Kind: KindValidation, Message: "Referenced record not found"}
	ruleRequired   = Rule{Kind: KindValidation, Message: "Required field missing"}
	ruleSchema     = Rule{Kind: KindDatabase, Message: "Database schema error"}
	ruleConnection = Rule{Kind: KindExternalService, Message: "Database connection error"}
	ruleConflict   = Rule{Kind: KindDatabase, Message: "Transaction conflict"}
	ruleConstraint = Rule{Kind: KindValidation, Message: "Constraint violation"}
	rulePermission = Rule{Kind: KindPermission, Message: "Permission denied"}
	ruleNotFound   = Rule{Kind: KindNotFound, Message: notFoundMessage}
)

// RepositoryCodes is the table for errors go-repository-bun has already
// mapped: codes are its text codes, classes its categories. Both built-in
// driver tables include it.
func RepositoryCodes() CodeTable {
	class := func(c goerrors.Category) string { return string(c) }

	return CodeTable{
		Driver: DriverRepository,
		Codes: map[string]Rule{
			"DUPLICATE_KEY":              ruleDuplicate,
			"FOREIGN_KEY_VIOLATION":      ruleReference,
			"NOT_NULL_VIOLATION":         ruleRequired,
			"CHECK_CONSTRAINT_VIOLATION": ruleConstraint,
			"CONSTRAINT_VIOLATION":       ruleConstraint,
			"SERIALIZATION_FAILURE":      ruleConflict,
			"DEADLOCK_DETECTED":          ruleConflict,
			"CONNECTION_ERROR":           ruleConnection,
			"CONNECTION_CLOSED":          ruleConnection,
			"CONNECTION_REFUSED":         ruleConnection,
			"DATABASE_TIMEOUT":           ruleConnection,
			"DATABASE_LOCKED":            ruleConnection,
			"TABLE_LOCKED":               ruleConnection,
			"RECORD_NOT_FOUND":           ruleNotFound,
			"INSUFFICIENT_PRIVILEGE":     rulePermission,
			"AUTHORIZATION_DENIED":       rulePermission,
			"SYNTAX_ERROR":               ruleSchema,
			"TRANSACTION_DONE":           {Kind: KindDatabase, Message: "Transaction already finished"},
		},
		Classes: map[string]Rule{
			class(repository.CategoryDatabaseNotFound):   ruleNotFound,
			class(repository.CategoryDatabaseDuplicate):  ruleDuplicate,
			class(repository.CategoryDatabaseConstraint): ruleConstraint,
			class(repository.CategoryDatabaseConnection): ruleConnection,
			class(repository.CategoryDatabaseTimeout):    ruleConnection,
			class(repository.CategoryDatabaseLock):       ruleConflict,
			class(repository.CategoryDatabasePermission): rulePermission,
			class(repository.CategoryDatabaseSyntax):     ruleSchema,
			class(repository.CategoryDatabase):           {Kind: KindDatabase, Message: "Database operation failed"},
			class(goerrors.CategoryExternal):             ruleConnection,
		},
	}
}

// PostgresCodes is the SQLSTATE table used with lib/pq.
func PostgresCodes() CodeTable {
	return RepositoryCodes().Merge(CodeTable{
		Driver: DriverPostgres,
		Codes: map[string]Rule{
			"23505": ruleDuplicate,
			"23503": ruleReference,
			"23502": ruleRequired,
			"22P02": {Kind: KindValidation, Message: "Invalid input syntax"},
			"42P01": ruleSchema,
			"42703": ruleSchema,
			"40001": ruleConflict,
			"40P01": ruleConflict,
		},
		Classes: map[string]Rule{
			"08": ruleConnection,
		},
	})
}

// SQLiteCodes is the result code table used with mattn/go-sqlite3.
func SQLiteCodes() CodeTable {
	code := func(c sqlite3.ErrNoExtended) string { return strconv.Itoa(int(c)) }
	class := func(c sqlite3.ErrNo) string { return strconv.Itoa(int(c)) }

	return RepositoryCodes().Merge(CodeTable{
		Driver: DriverSQLite,
		Codes: map[string]Rule{
			code(sqlite3.ErrConstraintUnique):     ruleDuplicate,
			code(sqlite3.ErrConstraintPrimaryKey): ruleDuplicate,
			code(sqlite3.ErrConstraintForeignKey): ruleReference,
			code(sqlite3.ErrConstraintNotNull):    ruleRequired,
		},
		Classes: map[string]Rule{
			class(sqlite3.ErrBusy):     ruleConnection,
			class(sqlite3.ErrLocked):   ruleConnection,
			class(sqlite3.ErrCantOpen): ruleConnection,
		},
	})
}

// CodesForDriver returns the built-in table for driver, falling back to Postgres.
func CodesForDriver(driver string) CodeTable {
	if driver == DriverSQLite || driver == "sqlite" {
		return SQLiteCodes()
	}
	return PostgresCodes()
}

// LoadCodeTable reads a YAML code table. Entries in the file override the
// built-in table of the driver named in the file.
func LoadCodeTable(path string) (CodeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CodeTable{}, errors.Wrapf(err, "read code table %s", path)
	}
	return ParseCodeTable(data)
}

// ParseCodeTable decodes a YAML code table and layers it over the built-in
// table for its driver.
func ParseCodeTable(data []byte) (CodeTable, error) {
	var t CodeTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return CodeTable{}, errors.Wrap(err, "parse code table")
	}
	merged := CodesForDriver(t.Driver).Merge(t)
	if err := merged.Validate(); err != nil {
		return CodeTable{}, err
	}
	return merged, nil
}
