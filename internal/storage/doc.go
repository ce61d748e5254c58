// Package storage persists firing history.
//
// The only real backend is SQLite (modernc.org/sqlite, pure Go). With the
// driver set to "none" the daemon runs without history; callers must handle
// a nil Store.
package storage
