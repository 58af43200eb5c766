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

// Package store provides the transactional key-value storage the reward
// pot state is kept in. All backends apply the writes of an update
// atomically and discard them if the update callback fails.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "store")

var (
	ErrNotFound = errors.New("key not found")
	// ErrStop can be returned from an iteration callback to end the
	// iteration without error
	ErrStop = errors.New("stop iteration")
)

// Reader provides read access to the store. Iterate visits all keys with
// the given prefix in ascending byte order
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Txn is a read-write transaction. Reads observe the writes made earlier
// in the same transaction
type Txn interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
}

type Store interface {
	View(fn func(r Reader) error) error
	Update(fn func(txn Txn) error) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSqlite = "sqlite"
)

// Open opens the store of the given backend. The path is a directory for
// badger and a database file for sqlite and ignored for the memory backend
func Open(backend, path string) (Store, error) {
	log.Debugf("Opening %v store %v", backend, path)

	switch strings.ToLower(backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		return NewBadger(path)
	case BackendSqlite, "sqlite3":
		return NewSqlite(path, "kv")
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func iterationDone(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
