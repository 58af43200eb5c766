// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Sqlite is a persistent store keeping all entries in a single key-value
// table of an SQLite3 database
type Sqlite struct {
	db    *sql.DB
	table string
}

func NewSqlite(path string, table string) (*Sqlite, error) {

	log.Tracef("Opening database %v", path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 DB: %w", err)
	}

	// Transactions must not interleave on different connections
	db.SetMaxOpenConns(1)

	ok, err := tableExists(db, table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check tables: %w", err)
	}
	if !ok {
		if err := createTable(db, table); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Sqlite{db: db, table: table}, nil
}

func (s *Sqlite) View(fn func(r Reader) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(sqliteTxn{tx: tx, table: s.table})
}

// Update runs fn in a transaction that is rolled back if fn fails
func (s *Sqlite) Update(fn func(txn Txn) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(sqliteTxn{tx: tx, table: s.table}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			log.Warnf("Failed to roll back transaction: %v", rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

type sqliteTxn struct {
	tx    *sql.Tx
	table string
}

func (t sqliteTxn) Get(key []byte) ([]byte, error) {
	stmt := fmt.Sprintf("SELECT value FROM %v WHERE key = ?;", t.table)

	var value []byte
	err := t.tx.QueryRow(stmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query key %q: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (t sqliteTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t sqliteTxn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	// BLOBs compare with memcmp, so the keys are in ascending byte order.
	// A nil prefix would be bound as NULL
	if prefix == nil {
		prefix = []byte{}
	}
	stmt := fmt.Sprintf("SELECT key, value FROM %v WHERE key >= ? ORDER BY key ASC;", t.table)

	rows, err := t.tx.Query(stmt, prefix)
	if err != nil {
		return fmt.Errorf("failed to exec sqlite3 statement: %w", err)
	}

	type entry struct {
		key   []byte
		value []byte
	}
	entries := make([]entry, 0)
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if !bytes.HasPrefix(e.key, prefix) {
			break
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate rows: %w", err)
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return iterationDone(err)
		}
	}
	return nil
}

func (t sqliteTxn) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	stmt := fmt.Sprintf(`INSERT INTO %v (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, t.table)
	if _, err := t.tx.Exec(stmt, key, value); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

func (t sqliteTxn) Delete(key []byte) error {
	stmt := fmt.Sprintf("DELETE FROM %v WHERE key = ?;", t.table)
	if _, err := t.tx.Exec(stmt, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func tableExists(db *sql.DB, table string) (bool, error) {
	stmt := fmt.Sprintf("SELECT name FROM sqlite_master WHERE type='table' AND name='%v';",
		table)

	rows, err := db.Query(stmt)
	if err != nil {
		return false, fmt.Errorf("failed to exec sqlite3 statement: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		log.Tracef("Table %v exists", table)
		return true, nil
	}

	log.Tracef("Table %v does not exist", table)
	return false, nil
}

func createTable(db *sql.DB, table string) error {

	log.Tracef("Creating table %v", table)

	sqlStmt := fmt.Sprintf(`
CREATE TABLE %v (
    key BLOB PRIMARY KEY NOT NULL,
    value BLOB NOT NULL
);`, table)
	_, err := db.Exec(sqlStmt)
	if err != nil {
		return fmt.Errorf("failed to exec sqlite3 create statement: %w", err)
	}

	return nil
}
