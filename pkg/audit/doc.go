// Package audit journals key pool events for later inspection.
//
// # Overview
//
// Every pool transition produces an Event: checkouts, misses, usage
// and failure reports, fatal retirements, and registry refreshes. A
// Recorder accepts events on a bounded channel and a single background
// worker flushes them to a Store. Enqueueing never blocks: when the
// buffer is full the event is dropped and counted, because the pool
// must not stall on journaling.
//
// Two stores are provided: SQLiteStore writes an append-only events
// table in its own database file, and MemoryStore keeps a capped ring
// for tests and simulations.
//
// # Usage
//
//	store, err := audit.NewSQLiteStore("data/audit.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	recorder := audit.NewRecorder(store, audit.DefaultConfig())
//	recorder.Record(audit.Event{
//	    Kind:  audit.KindCheckout,
//	    KeyID: "key-gcp-01",
//	    Tier:  "flash",
//	})
//	defer recorder.Close() // drains the buffer
//
//	events, err := store.Query(ctx, audit.Filter{KeyID: "key-gcp-01"})
//
// # Thread Safety
//
// Recorder and both stores are safe for concurrent use.
package audit
