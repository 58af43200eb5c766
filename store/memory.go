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
	"sort"
	"strings"
	"sync"
)

// Memory is a volatile store, used for tests and ephemeral deployments
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

func (m *Memory) View(fn func(r Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memTxn{base: m.data})
}

// Update stages all writes and applies them only if fn succeeds
func (m *Memory) Update(fn func(txn Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := &memTxn{
		base:   m.data,
		staged: make(map[string][]byte),
	}
	if err := fn(txn); err != nil {
		log.Tracef("Discarding %v staged writes: %v", len(txn.staged), err)
		return err
	}

	for k, v := range txn.staged {
		if v == nil {
			delete(m.data, k)
		} else {
			m.data[k] = v
		}
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// memTxn overlays staged writes over the committed data. A nil staged
// value marks a deletion
type memTxn struct {
	base   map[string][]byte
	staged map[string][]byte
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	if v, ok := t.staged[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return bytes.Clone(v), nil
	}
	v, ok := t.base[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (t *memTxn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	keys := make([]string, 0)
	for k := range t.base {
		if _, ok := t.staged[k]; !ok && strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	for k, v := range t.staged {
		if v != nil && strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := t.Get([]byte(k))
		if err != nil {
			return err
		}
		if err := fn([]byte(k), v); err != nil {
			return iterationDone(err)
		}
	}
	return nil
}

func (t *memTxn) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	t.staged[string(key)] = bytes.Clone(value)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	t.staged[string(key)] = nil
	return nil
}
