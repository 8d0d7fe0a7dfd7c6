// Package storage persists the key registry and each key's penalty
// state.
//
// # Overview
//
// The pool keeps quota windows in memory only; what survives a restart
// is the registry itself (key id, secret, tier, priority) and the
// penalty columns (consecutive strikes, cooldown expiry). The Backend
// interface is deliberately narrow: load everything, write back one
// key's penalty state. Two implementations are provided:
//
//   - SQLite: file-based persistence, the normal deployment
//   - Memory: test and simulation backend, no persistence
//
// The SQLite store also carries the administrative operations used by
// the CLI (insert, remove, reset penalties); those are not part of
// Backend because the pool itself never adds or removes rows.
//
// # Usage
//
//	store, err := storage.NewSQLiteStore("keywarden.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rows, err := store.LoadAll(ctx)
//
// # Thread Safety
//
// All backends are safe for concurrent use. Locking is internal to
// each backend.
package storage
