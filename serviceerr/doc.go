// Package serviceerr defines ServiceError, the single error type returned by
// services, and the Classifier that produces it from driver failures.
//
// Driver errors (lib/pq, mattn/go-sqlite3) are translated into DriverError at
// the boundary and matched against a CodeTable, so the classifier itself does
// not know any vendor codes. Errors that go-repository-bun has already mapped
// keep only a text code and category; those match RepositoryCodes. Tables can be loaded from YAML:
//
//	driver: postgres
//	codes:
//	  "23505": {kind: DUPLICATE_ENTRY, message: Record already exists}
//	classes:
//	  "08": {kind: EXTERNAL_SERVICE_ERROR, message: Database connection error}
//
// Handlers map a Kind to a status with Kind.HTTPStatus.
package serviceerr
