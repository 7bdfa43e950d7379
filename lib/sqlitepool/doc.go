// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite databases River keeps on local
// disk.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies one set
// of pragmas to every connection:
//
//   - journal_mode=WAL so a reader (the CLI listing rooms) never blocks
//     the synchronizer's writes.
//   - synchronous=FULL. The database holds signing keys and the only
//     local copy of rooms the user owns, so a committed save must
//     survive power loss.
//   - busy_timeout=5000 so two River processes sharing a database wait
//     for the write lock instead of failing with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// Callers either manage connections directly with [Pool.Take] and
// [Pool.Put], or hand a function to [Pool.Write], which runs it inside
// an immediate transaction. A connection must not be shared between
// goroutines.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(dir, "river.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
package sqlitepool
