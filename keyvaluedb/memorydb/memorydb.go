// Copyright 2025 Zintix Labs
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

package memorydb

import (
	"bytes"
	"sort"
	"strings"
	"sync"

	"github.com/zintix-labs/flipvault/keyvaluedb"
)

// MemoryDB 是無持久化的 KeyValueDB，給測試與模擬器使用。
type MemoryDB struct {
	mu      sync.RWMutex
	db      map[string][]byte
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
}

func New() *MemoryDB {
	return &MemoryDB{
		db:      make(map[string][]byte),
		encoder: keyvaluedb.Encode,
		decoder: keyvaluedb.Decode,
	}
}

func (db *MemoryDB) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	db.mu.RLock()
	data, ok := db.db[string(key)]
	db.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, db.decoder(data, v)
}

func (db *MemoryDB) Write(key []byte, v any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := db.encoder(v)
	if err != nil {
		return err
	}
	db.mu.Lock()
	db.db[string(key)] = b
	db.mu.Unlock()
	return nil
}

func (db *MemoryDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	db.mu.Lock()
	delete(db.db, string(key))
	db.mu.Unlock()
	return nil
}

func (db *MemoryDB) Find(prefix []byte) keyvaluedb.Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p := string(prefix)
	entries := make([]keyvaluedb.Entry, 0, 16)
	for k, v := range db.db {
		if strings.HasPrefix(k, p) {
			entries = append(entries, keyvaluedb.Entry{Key: []byte(k), Value: bytes.Clone(v)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })
	return keyvaluedb.NewSliceIterator(entries, db.decoder)
}

func (db *MemoryDB) StartTx() (keyvaluedb.DBTransaction, error) {
	return &memTx{db: db, writes: map[string][]byte{}, deletes: map[string]struct{}{}}, nil
}

func (db *MemoryDB) Close() error { return nil }

// memTx 以緩衝區記錄寫入，Commit 時在一次鎖內套用，達成 all-or-nothing。
type memTx struct {
	db      *MemoryDB
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

func (tx *memTx) Read(key []byte, v any) (bool, error) {
	if tx.closed {
		return false, keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	k := string(key)
	if _, ok := tx.deletes[k]; ok {
		return false, nil
	}
	if data, ok := tx.writes[k]; ok {
		return true, tx.db.decoder(data, v)
	}
	return tx.db.Read(key, v)
}

func (tx *memTx) Write(key []byte, v any) error {
	if tx.closed {
		return keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := tx.db.encoder(v)
	if err != nil {
		return err
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = b
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if tx.closed {
		return keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return keyvaluedb.ErrTxClosed
	}
	tx.closed = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k := range tx.deletes {
		delete(tx.db.db, k)
	}
	for k, v := range tx.writes {
		tx.db.db[k] = v
	}
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.closed {
		return keyvaluedb.ErrTxClosed
	}
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
	return nil
}
