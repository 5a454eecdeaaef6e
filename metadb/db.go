// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package metadb is the metadata database: the single source of truth for
// Files, Instances, RemoteInstances, transfer state machines, the send
// queue, and durable Error/CorruptFile records (spec section 5). It wraps
// database/sql over modernc.org/sqlite, a pure-Go driver already present
// transitively in the teacher's dependency graph and used directly
// elsewhere in the example pack.
package metadb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened against the configured sqlite DSN, with the
// schema bootstrapped.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dsn and
// bootstraps its schema.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}
	// sqlite permits only one writer at a time; a single connection avoids
	// "database is locked" errors under our own short-transaction discipline.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}
	return &DB{sql: sqlDB}, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

// txFunc runs fn inside a BEGIN IMMEDIATE transaction, rolling back on error
// or panic and committing otherwise. BEGIN IMMEDIATE takes sqlite's reserved
// lock up front, giving us the same "reserve this row for exactly one
// writer" guarantee the spec asks of SELECT ... FOR UPDATE SKIP LOCKED (see
// DESIGN.md for why sqlite's locking model stands in for Postgres-style
// row locks here).
func (db *DB) txFunc(fn func(tx *sql.Tx) error) (err error) {
	// LevelSerializable maps to SQLite's BEGIN IMMEDIATE under modernc.org/sqlite,
	// taking the write lock up front rather than on first write.
	tx, err := db.sql.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
