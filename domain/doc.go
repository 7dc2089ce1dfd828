// Package domain defines the data structures recorded by the relay and the
// repository interfaces that persist them.
//
// The relay never interprets the payloads it forwards; the types here describe
// the exchanges themselves (what was sent upstream, what came back) and the
// relay's own log entries. Keeping the interfaces here lets the relay depend on
// the contracts while the db package provides the SQLite implementation.
package domain
