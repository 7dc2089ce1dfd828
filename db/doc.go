// Package db provides the SQLite persistence layer for the relay's traffic recorder.
//
// This package is responsible for:
// - Opening the database and applying the embedded goose migrations (`db.go`).
// - Implementing the domain repository interfaces (`TrafficRepository`,
//   `LogRepository`, `StatsRepository`).
// - Converting between domain structs and database rows, using `sql.Null*`
//   types for response columns that stay empty until the upstream answers.
// - Common column types such as the JSON metadata map (`types.go`).
package db
