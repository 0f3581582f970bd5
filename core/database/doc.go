// Package database provides the gorm connection used by every controller.
//
// # Drivers
//
// Two drivers are supported:
//   - mysql: the production backend. Timeouts are applied to the DSN.
//   - sqlite: used for local development and tests. The pool is pinned to one
//     connection so that ":memory:" databases survive between queries.
//
// # Schema helpers
//
// GetTableColumns and MissingColumns inspect a live table (SHOW COLUMNS on
// MySQL, PRAGMA table_info on SQLite). Controllers use them at startup to verify
// that an object table carries the controller columns.
//
// JSON[T] stores an arbitrary Go value in a single json column and is used for
// controller states, outcomes and per-object configuration blobs.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	missing, err := database.MissingColumns(db, "switches", "controller_state")
package database
