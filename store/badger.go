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
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a persistent store backed by a badger database directory
type Badger struct {
	db *badger.DB
}

// NewBadger opens the badger database in dir. An empty dir opens an
// in-memory database
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database %v: %w", dir, err)
	}

	log.Tracef("Opened badger database %v", dir)

	return &Badger{db: db}, nil
}

func (b *Badger) View(fn func(r Reader) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn})
	})
}

// Update runs fn in a badger read-write transaction, which is committed
// only if fn succeeds
func (b *Badger) Update(fn func(txn Txn) error) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn})
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return item.ValueCopy(nil)
}

func (t badgerTxn) Has(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return true, nil
}

func (t badgerTxn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read value of %q: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return iterationDone(err)
		}
	}
	return nil
}

func (t badgerTxn) Set(key, value []byte) error {
	return t.txn.Set(bytes.Clone(key), bytes.Clone(value))
}

func (t badgerTxn) Delete(key []byte) error {
	return t.txn.Delete(bytes.Clone(key))
}
